package persist

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"swimfeed/internal/decode"
	"swimfeed/internal/fanout"
	"swimfeed/internal/state"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := state.NewStore()

	store.ApplyFlight(&decode.FlightPartial{
		GUFI: "KA12345", Source: "FP", Timestamp: time.Now().UTC(),
		Callsign: "AAL100", Origin: "KBOS", Destination: "KJFK",
	})
	store.ApplyFlight(&decode.FlightPartial{
		GUFI: "KA99999", Source: "UP", Timestamp: time.Now().UTC(), Status: "CANCELLED",
	})
	guid := store.Flight("KA12345").Snapshot().GUID

	c := NewCache(dir, store, discardLog())
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}

	restored := state.NewStore()
	n, err := NewCache(dir, restored, discardLog()).Load()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("restored %d flights, want 1 (cancelled excluded)", n)
	}
	rec := restored.Flight("KA12345")
	if rec == nil {
		t.Fatal("flight not restored")
	}
	snap := rec.Snapshot()
	if snap.GUID != guid {
		t.Errorf("GUID changed across restore: %q vs %q", snap.GUID, guid)
	}
	if snap.Callsign != "AAL100" || snap.Origin != "KBOS" {
		t.Errorf("restored record = %+v", snap)
	}
	// The flight plan event makes the backfilled type FILED.
	if snap.FlightType != "FILED" {
		t.Errorf("FlightType = %q, want FILED", snap.FlightType)
	}
}

func TestCacheTooOldSkipped(t *testing.T) {
	dir := t.TempDir()
	cf := cacheFile{
		SavedAt: time.Now().UTC().Add(-2 * time.Hour),
		Flights: []state.FlightRecord{{GUFI: "KA1", GUID: "g"}},
	}
	data, _ := json.Marshal(cf)
	if err := os.WriteFile(filepath.Join(dir, cacheFileName), data, 0o644); err != nil {
		t.Fatal(err)
	}

	store := state.NewStore()
	n, err := NewCache(dir, store, discardLog()).Load()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("restored %d flights from a stale cache, want 0", n)
	}
}

func TestBackfillFlightTypeRadarOnly(t *testing.T) {
	rec := state.FlightRecord{
		Events: []state.FlightEvent{{Source: state.SourceTrack}, {Source: state.SourceHeartbeat}},
	}
	backfillFlightType(&rec)
	if rec.FlightType != "RADAR_ONLY" {
		t.Errorf("FlightType = %q, want RADAR_ONLY", rec.FlightType)
	}

	rec = state.FlightRecord{FlightType: "SCHEDULED"}
	backfillFlightType(&rec)
	if rec.FlightType != "SCHEDULED" {
		t.Errorf("backfill overwrote an existing type: %q", rec.FlightType)
	}
}

func TestArchiveAppendAndReadDay(t *testing.T) {
	dir := t.TempDir()
	a := NewArchive(dir, 0, nil, discardLog())

	a.Append([]state.FlightRecord{
		{GUFI: "KA1", Callsign: "DAL5", EventArchive: []state.FlightEvent{{Summary: "Flight plan"}}},
		{GUFI: "KA2", Callsign: "UAL7"},
	})

	day := time.Now().UTC().Format(dayFormat)
	var got []string
	err := a.ReadDay(day, func(raw json.RawMessage) bool {
		var rec archiveRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			t.Fatal(err)
		}
		got = append(got, rec.GUFI)
		if rec.GUFI == "KA1" && len(rec.AllEvents) != 1 {
			t.Errorf("KA1 archived without its event archive: %+v", rec.AllEvents)
		}
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "KA1" || got[1] != "KA2" {
		t.Errorf("archived gufis = %v", got)
	}
}

func TestArchiveBudgetCompressesAndDeletesOldest(t *testing.T) {
	dir := t.TempDir()
	// Tiny budget so anything on disk is over it.
	a := NewArchive(dir, 1, nil, discardLog())

	write := func(name string, size int) {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now().UTC()
	today := now.Format(dayFormat)
	write("2026-01-01.jsonl", 4096)
	write("2026-01-02.jsonl", 4096)
	write(today+".jsonl", 4096)

	a.enforceBudget(now)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	// The current day survives even over budget; everything else goes.
	if len(names) != 1 || names[0] != today+".jsonl" {
		t.Errorf("remaining files = %v, want only %s.jsonl", names, today)
	}
}

func TestArchiveReadDayDecompresses(t *testing.T) {
	dir := t.TempDir()
	a := NewArchive(dir, 0, nil, discardLog())

	line, _ := json.Marshal(archiveRecord{FlightRecord: state.FlightRecord{GUFI: "KA9"}})
	if err := os.WriteFile(filepath.Join(dir, "2026-02-03.jsonl"), append(line, '\n'), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := a.compress("2026-02-03.jsonl"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "2026-02-03.jsonl")); !os.IsNotExist(err) {
		t.Fatal("original file still present after compress")
	}

	found := false
	err := a.ReadDay("2026-02-03", func(raw json.RawMessage) bool {
		var rec archiveRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			t.Fatal(err)
		}
		found = rec.GUFI == "KA9"
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("record not readable through the compressed file")
	}
}

func TestHistoryInsertSearchDates(t *testing.T) {
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	recs := []state.FlightRecord{
		{GUFI: "KA1", GUID: "g1", Callsign: "JBU123", Origin: "KBOS", Destination: "KMCO",
			FirstSeen: time.Now().UTC().Add(-time.Hour), LastSeen: time.Now().UTC()},
		{GUFI: "KA2", GUID: "g2", Callsign: "DAL456",
			FirstSeen: time.Now().UTC().Add(-time.Hour), LastSeen: time.Now().UTC()},
	}
	if err := h.Insert(&recs[0], "2026-08-24"); err != nil {
		t.Fatal(err)
	}
	if err := h.Insert(&recs[1], "2026-08-23"); err != nil {
		t.Fatal(err)
	}

	rows, err := h.Search(HistoryQuery{Query: "JBU"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].GUFI != "KA1" {
		t.Fatalf("search rows = %+v", rows)
	}
	if rows[0].Origin != "KBOS" || rows[0].Destination != "KMCO" {
		t.Errorf("row = %+v", rows[0])
	}
	var full state.FlightRecord
	if err := json.Unmarshal(rows[0].Record, &full); err != nil {
		t.Fatal(err)
	}
	if full.Callsign != "JBU123" {
		t.Errorf("embedded record callsign = %q", full.Callsign)
	}

	rows, err = h.Search(HistoryQuery{Date: "2026-08-23"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].GUFI != "KA2" {
		t.Fatalf("date search rows = %+v", rows)
	}

	days, err := h.Dates()
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 2 || days[0] != "2026-08-24" {
		t.Errorf("dates = %v, want newest first", days)
	}
}

func TestHeartbeatCollect(t *testing.T) {
	store := state.NewStore()
	store.ApplyFlight(&decode.FlightPartial{GUFI: "KA1", Source: "FP", Timestamp: time.Now().UTC()})
	hub := fanout.NewHub(store, nil, fanout.Options{}, discardLog())

	sessions := []SessionStatus{
		{Name: "sfdps", Connected: true, Messages: 100},
		{Name: "smes", Connected: true, Messages: 50},
	}
	hb := NewHeartbeat(hub, store, func() []SessionStatus { return sessions }, discardLog())

	now := time.Now().UTC()
	hb.lastTick = now.Add(-5 * time.Second)
	msg := hb.collect(now)
	if !msg.Connected || msg.TotalMessages != 150 || msg.ActiveFlights != 1 {
		t.Fatalf("stats = %+v", msg)
	}
	if msg.Rate < 29 || msg.Rate > 31 {
		t.Errorf("rate = %v, want ~30 msg/s over a 5 s window", msg.Rate)
	}

	// One session down flips the connected flag.
	sessions[1].Connected = false
	msg = hb.collect(now.Add(5 * time.Second))
	if msg.Connected {
		t.Error("connected should be false with a session down")
	}
}
