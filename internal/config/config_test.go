package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, want :8080", cfg.Listen)
	}
	if cfg.EnRoute.URL != "nats://localhost:4222" {
		t.Errorf("EnRoute.URL = %q", cfg.EnRoute.URL)
	}
	if len(cfg.Tracks.Subjects) != 3 {
		t.Errorf("Tracks.Subjects = %v, want three", cfg.Tracks.Subjects)
	}
	if len(cfg.Regions) == 0 {
		t.Error("expected default enrichment regions")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"listen": ":9090",
		"enroute": {"url": "nats://broker:4222", "user": "swim", "queue": "q1", "subjects": ["SFDPS.FDPS.>"]},
		"nasrDir": "/data/nasr",
		"coverage": [{"facility": "A90", "lat": 42.5, "lon": -71.0}]
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SWIMFEED_LISTEN", ":7070")
	t.Setenv("SWIMFEED_ENROUTE_PASS", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("env should win over file: Listen = %q", cfg.Listen)
	}
	if cfg.EnRoute.URL != "nats://broker:4222" || cfg.EnRoute.User != "swim" {
		t.Errorf("file broker not applied: %+v", cfg.EnRoute)
	}
	if cfg.EnRoute.Pass != "secret" {
		t.Errorf("EnRoute.Pass = %q, want secret", cfg.EnRoute.Pass)
	}
	if cfg.NASRDir != "/data/nasr" {
		t.Errorf("NASRDir = %q", cfg.NASRDir)
	}
	if len(cfg.Coverage) != 1 || cfg.Coverage[0].Facility != "A90" {
		t.Errorf("Coverage = %+v", cfg.Coverage)
	}
	// Fields the file leaves out keep their defaults.
	if cfg.Tracks.URL != "nats://localhost:4222" {
		t.Errorf("Tracks.URL = %q, want default", cfg.Tracks.URL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
