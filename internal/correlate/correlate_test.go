package correlate

import (
	"path/filepath"
	"testing"

	"swimfeed/internal/decode"
	"swimfeed/internal/state"
)

func TestEnrichDirectGUFI(t *testing.T) {
	store := state.NewStore()
	store.ApplyFlight(&decode.FlightPartial{
		GUFI: "us.fdps.1", Source: "FP",
		Callsign: "JBU512", Origin: "KBOS", Destination: "KFLL",
		RouteText:        "KBOS SSOXS4 SSOXS Q75 KFLL",
		ArrivalProcedure: "CSTAL2",
	})

	c := New(store, nil)
	tr := state.SurfaceTrack{Airport: "KBOS", TrackID: "10", Callsign: "JBU512", EramGUFI: "us.fdps.1"}
	c.Enrich(&tr)

	if tr.Origin != "KBOS" || tr.Dest != "KFLL" {
		t.Errorf("overlay = %q -> %q", tr.Origin, tr.Dest)
	}
	if tr.Procedure != "CSTAL2" || tr.Route == "" {
		t.Errorf("procedure = %q route = %q", tr.Procedure, tr.Route)
	}
}

func TestEnrichCallsignPrefersDepartureLeg(t *testing.T) {
	store := state.NewStore()
	// Same callsign twice: the inbound leg and the outbound turnover.
	store.ApplyFlight(&decode.FlightPartial{
		GUFI: "us.fdps.in", Source: "FP",
		Callsign: "AAL100", Origin: "KORD", Destination: "KBOS",
	})
	store.ApplyFlight(&decode.FlightPartial{
		GUFI: "us.fdps.out", Source: "FP",
		Callsign: "AAL100", Origin: "KBOS", Destination: "KORD",
	})

	c := New(store, nil)
	tr := state.SurfaceTrack{Airport: "KBOS", TrackID: "11", Callsign: "AAL100"}
	c.Enrich(&tr)

	if tr.Dest != "KORD" || tr.Origin != "KBOS" {
		t.Errorf("picked %q -> %q, want the departure leg", tr.Origin, tr.Dest)
	}
}

func TestEnrichTowerAttach(t *testing.T) {
	store := state.NewStore()
	store.ApplyTower(&decode.TowerPartial{
		Kind: decode.TowerEventClearance, Airport: "BOS", AircraftID: "DAL9",
		Destination: "KATL", Body: "CLEARED TO KATL",
	})
	store.ApplyTower(&decode.TowerPartial{
		Kind: decode.TowerEventDeparture, Airport: "BOS", AircraftID: "DAL9",
		Gate: "A17", Runway: "22R",
	})

	c := New(store, nil)
	// Surface track uses the ICAO spelling and different callsign case.
	tr := state.SurfaceTrack{Airport: "KBOS", TrackID: "12", Callsign: "dal9"}
	c.Enrich(&tr)

	if tr.Gate != "A17" || tr.Runway != "22R" {
		t.Errorf("gate/runway = %q/%q", tr.Gate, tr.Runway)
	}
	if tr.Dest != "KATL" {
		t.Errorf("Dest = %q, TDLS destination should backfill", tr.Dest)
	}
}

func TestEnrichSFDPSDestinationWins(t *testing.T) {
	store := state.NewStore()
	store.ApplyFlight(&decode.FlightPartial{
		GUFI: "us.fdps.2", Source: "FP",
		Callsign: "UAL3", Origin: "KBOS", Destination: "KSFO",
	})
	store.ApplyTower(&decode.TowerPartial{
		Kind: decode.TowerEventClearance, Airport: "BOS", AircraftID: "UAL3",
		Destination: "KOAK",
	})

	c := New(store, nil)
	tr := state.SurfaceTrack{Airport: "KBOS", TrackID: "13", Callsign: "UAL3"}
	c.Enrich(&tr)

	if tr.Dest != "KSFO" {
		t.Errorf("Dest = %q, flight-plan destination outranks TDLS", tr.Dest)
	}
}

func TestGateCodeMatch(t *testing.T) {
	g, err := NewGateCodes(filepath.Join(t.TempDir(), "gatecodes.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Set("KBOS", []GatePattern{
		{Code: "SSX", Pattern: "SSOXS# SSOXS"},
		{Code: "Q75", Pattern: "Q75"},
	}); err != nil {
		t.Fatal(err)
	}

	code, ok := g.Match("KBOS", "KBOS SSOXS4 SSOXS Q75 KFLL")
	if !ok || code != "SSX" {
		t.Errorf("Match = %q, %v; first matching pattern wins", code, ok)
	}

	code, ok = g.Match("KBOS", "KBOS HYLND Q75 KFLL")
	if !ok || code != "Q75" {
		t.Errorf("Match = %q, %v", code, ok)
	}

	if _, ok := g.Match("KBOS", "KBOS PATSS ENE"); ok {
		t.Error("no pattern should match")
	}
	if _, ok := g.Match("KJFK", "Q75"); ok {
		t.Error("patterns are per-airport")
	}
}

func TestGateCodePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatecodes.json")
	g, _ := NewGateCodes(path)
	if err := g.Set("KBOS", []GatePattern{{Code: "SSX", Pattern: "SSOXS#"}}); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewGateCodes(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Get("KBOS"); len(got) != 1 || got[0].Code != "SSX" {
		t.Errorf("reloaded = %+v", got)
	}
}

func TestGateCodeFallbackToLID(t *testing.T) {
	store := state.NewStore()
	store.ApplyFlight(&decode.FlightPartial{
		GUFI: "us.fdps.3", Source: "FP",
		Callsign: "SWA1", Origin: "KBOS", Destination: "KPHX",
	})
	g, _ := NewGateCodes("")
	c := New(store, g)

	tr := state.SurfaceTrack{Airport: "KBOS", TrackID: "14", Callsign: "SWA1"}
	c.Enrich(&tr)
	if tr.GateCode != "PHX" {
		t.Errorf("GateCode = %q, want destination truncated to the LID", tr.GateCode)
	}
}
