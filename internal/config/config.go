// Package config loads the service configuration: built-in defaults, then an
// optional JSON file, then environment-variable overrides, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"swimfeed/internal/adsb"
)

// Broker names one broker subscription.
type Broker struct {
	URL      string   `json:"url"`
	User     string   `json:"user"`
	Pass     string   `json:"pass"`
	Queue    string   `json:"queue"`
	Subjects []string `json:"subjects"`
}

// Config is the full service configuration.
type Config struct {
	Listen string `json:"listen"`

	EnRoute Broker `json:"enroute"`
	Tracks  Broker `json:"tracks"`

	ADSBBaseURL string `json:"adsbBaseUrl"`

	NASRDir       string `json:"nasrDir"`
	CacheDir      string `json:"cacheDir"`
	ArchiveDir    string `json:"archiveDir"`
	ArchiveBudget int64  `json:"archiveBudget"`
	HistoryDB     string `json:"historyDb"`
	GateCodesFile string `json:"gateCodesFile"`

	LogFile  string `json:"logFile"`
	LogLevel string `json:"logLevel"`

	// Regions drive the enrichment snapshot; Coverage drives military
	// injection. Both usually come from the JSON file.
	Regions  []adsb.Region   `json:"regions"`
	Coverage []adsb.Coverage `json:"coverage"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Listen: ":8080",
		EnRoute: Broker{
			URL:      "nats://localhost:4222",
			Queue:    "swimfeed-enroute",
			Subjects: []string{"SFDPS.>"},
		},
		Tracks: Broker{
			URL:      "nats://localhost:4222",
			Queue:    "swimfeed-tracks",
			Subjects: []string{"SMES.>", "TAIS.>", "TDES.>"},
		},
		NASRDir:       "nasr-data",
		CacheDir:      "flight-cache",
		ArchiveDir:    "flight-history",
		HistoryDB:     "flight-history/history.db",
		GateCodesFile: "gatecodes.json",
		LogLevel:      "info",
		Regions:       adsb.DefaultRegions,
	}
}

// Load builds the configuration: defaults, the JSON file at path (when not
// empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Listen, "SWIMFEED_LISTEN")
	set(&c.EnRoute.URL, "SWIMFEED_ENROUTE_URL")
	set(&c.EnRoute.User, "SWIMFEED_ENROUTE_USER")
	set(&c.EnRoute.Pass, "SWIMFEED_ENROUTE_PASS")
	set(&c.EnRoute.Queue, "SWIMFEED_ENROUTE_QUEUE")
	set(&c.Tracks.URL, "SWIMFEED_TRACKS_URL")
	set(&c.Tracks.User, "SWIMFEED_TRACKS_USER")
	set(&c.Tracks.Pass, "SWIMFEED_TRACKS_PASS")
	set(&c.Tracks.Queue, "SWIMFEED_TRACKS_QUEUE")
	set(&c.ADSBBaseURL, "SWIMFEED_ADSB_URL")
	set(&c.NASRDir, "SWIMFEED_NASR_DIR")
	set(&c.CacheDir, "SWIMFEED_CACHE_DIR")
	set(&c.ArchiveDir, "SWIMFEED_ARCHIVE_DIR")
	set(&c.HistoryDB, "SWIMFEED_HISTORY_DB")
	set(&c.GateCodesFile, "SWIMFEED_GATECODES_FILE")
	set(&c.LogFile, "SWIMFEED_LOG_FILE")
	set(&c.LogLevel, "SWIMFEED_LOG_LEVEL")
}
