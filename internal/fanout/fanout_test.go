package fanout

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"swimfeed/internal/decode"
	"swimfeed/internal/state"
)

func testHub(store *state.Store) *Hub {
	return NewHub(store, nil, Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func recvEnvelope(t *testing.T, s *Subscriber) map[string]any {
	t.Helper()
	select {
	case frame := <-s.Out():
		var env map[string]any
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("no frame queued")
		return nil
	}
}

func TestOptionsDefaults(t *testing.T) {
	h := testHub(state.NewStore())
	if h.opts.FlightIdle != 60*time.Minute {
		t.Errorf("FlightIdle default = %v, want 60m", h.opts.FlightIdle)
	}
	if h.opts.PointoutMaxAge != 3*time.Minute {
		t.Errorf("PointoutMaxAge default = %v, want 3m", h.opts.PointoutMaxAge)
	}
}

func TestSubscriberDropOldest(t *testing.T) {
	s := newSubscriber(Scope{Kind: ScopeFlights}, JSONCodec{})
	for i := 0; i < queueCap+10; i++ {
		s.send(Envelope{Type: TypeUpdate, Data: i})
	}
	if got := s.Dropped(); got != 10 {
		t.Fatalf("dropped = %d, want 10", got)
	}

	// The oldest frames went; the first one left should be payload 10.
	var env struct {
		Data int `json:"data"`
	}
	if err := json.Unmarshal(<-s.Out(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Data != 10 {
		t.Errorf("first queued payload = %d, want 10", env.Data)
	}
}

func TestSnapshotFilters(t *testing.T) {
	store := state.NewStore()

	// Positioned and fresh: included.
	store.ApplyFlight(&decode.FlightPartial{
		GUFI: "fresh", Source: "TH", Timestamp: time.Now().UTC(),
		Position: &decode.PositionUpdate{Lat: 40, Lon: -75, HasPosition: true},
	})
	// No position at all: excluded.
	store.ApplyFlight(&decode.FlightPartial{
		GUFI: "planned", Source: "FP", Timestamp: time.Now().UTC(), Callsign: "NOPOS1",
	})
	// Positioned but stale: excluded.
	store.ApplyFlight(&decode.FlightPartial{
		GUFI: "stale", Source: "TH", Timestamp: time.Now().UTC().Add(-10 * time.Minute),
		Position: &decode.PositionUpdate{Lat: 41, Lon: -75, HasPosition: true},
	})
	// Cancelled: excluded.
	store.ApplyFlight(&decode.FlightPartial{
		GUFI: "gone", Source: "UP", Timestamp: time.Now().UTC(), Status: "CANCELLED",
		Position: &decode.PositionUpdate{Lat: 42, Lon: -75, HasPosition: true},
	})

	h := testHub(store)
	sub := h.Subscribe(Scope{Kind: ScopeFlights}, JSONCodec{})
	defer h.Unsubscribe(sub)

	env := recvEnvelope(t, sub)
	if env["type"] != TypeSnapshot {
		t.Fatalf("first frame type = %v", env["type"])
	}
	recs, _ := env["data"].([]any)
	if len(recs) != 1 {
		t.Fatalf("snapshot carries %d records, want only the fresh one", len(recs))
	}
	rec := recs[0].(map[string]any)
	if rec["gufi"] != "fresh" {
		t.Errorf("snapshot gufi = %v", rec["gufi"])
	}
}

func TestFlushBatchesByScope(t *testing.T) {
	store := state.NewStore()
	h := testHub(store)

	flights := h.Subscribe(Scope{Kind: ScopeFlights}, JSONCodec{})
	bosSurface := h.Subscribe(Scope{Kind: ScopeSurface, Airport: "KBOS"}, JSONCodec{})
	jfkSurface := h.Subscribe(Scope{Kind: ScopeSurface, Airport: "KJFK"}, JSONCodec{})
	defer h.Unsubscribe(flights)
	defer h.Unsubscribe(bosSurface)
	defer h.Unsubscribe(jfkSurface)

	// Eat the connect snapshots.
	recvEnvelope(t, flights)
	recvEnvelope(t, bosSurface)
	recvEnvelope(t, jfkSurface)

	store.ApplyFlight(&decode.FlightPartial{
		GUFI: "f1", Source: "TH", Timestamp: time.Now().UTC(),
		Position: &decode.PositionUpdate{Lat: 40, Lon: -75, HasPosition: true},
	})
	store.ApplySurface(&decode.SurfacePartial{
		Airport: "KBOS", TrackID: "1", Callsign: "JBU1",
		Lat: 42.36, Lon: -71.01, HasPosition: true,
	})
	h.flush()

	env := recvEnvelope(t, flights)
	if env["type"] != TypeBatch {
		t.Errorf("flights frame type = %v", env["type"])
	}
	env = recvEnvelope(t, bosSurface)
	if env["type"] != TypeBatch {
		t.Errorf("surface frame type = %v", env["type"])
	}
	select {
	case f := <-jfkSurface.Out():
		t.Errorf("KJFK subscriber got a KBOS batch: %s", f)
	default:
	}
}

func TestTerminalPurgeEmitsRemoveAndScopeDelete(t *testing.T) {
	store := state.NewStore()
	h := testHub(store)

	store.ApplyTerminal(&decode.TerminalPartial{
		Facility: "A90", TrackNum: 42, Callsign: "DAL1",
		Lat: 42.4, Lon: -71.0, HasPosition: true,
	})
	tr, _ := store.Terminal(state.TerminalKey{Facility: "A90", TrackNum: 42})
	guid := tr.GUID
	store.DirtyTerminal.Drain()

	term := h.Subscribe(Scope{Kind: ScopeTerminal, Facility: "A90"}, JSONCodec{})
	scope := h.Subscribe(Scope{Kind: ScopeProto, Facility: "A90"}, MsgpackCodec{})
	defer h.Unsubscribe(term)
	defer h.Unsubscribe(scope)
	recvEnvelope(t, term)
	<-scope.Out() // msgpack snapshot

	h.sweepTracks(time.Now().UTC().Add(24 * time.Hour))

	env := recvEnvelope(t, term)
	if env["type"] != TypeRemove {
		t.Fatalf("terminal frame type = %v", env["type"])
	}

	var menv struct {
		Type string        `msgpack:"type"`
		Data []ScopeDelete `msgpack:"data"`
	}
	select {
	case frame := <-scope.Out():
		if err := msgpack.Unmarshal(frame, &menv); err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("no scope-protocol frame")
	}
	if menv.Type != TypeRemove || len(menv.Data) != 1 {
		t.Fatalf("scope frame = %+v", menv)
	}
	if menv.Data[0].GUID != guid {
		t.Errorf("delete GUID = %q, want the track's stable GUID %q", menv.Data[0].GUID, guid)
	}
}

func TestScopeProtoUpdateMapping(t *testing.T) {
	store := state.NewStore()
	h := testHub(store)

	scope := h.Subscribe(Scope{Kind: ScopeProto, Facility: "A90"}, MsgpackCodec{})
	defer h.Unsubscribe(scope)
	<-scope.Out() // snapshot

	store.ApplyTerminal(&decode.TerminalPartial{
		Facility: "A90", TrackNum: 7, Callsign: "UAL22",
		Lat: 42.5, Lon: -71.1, HasPosition: true,
		Altitude: 9000, HasAltitude: true,
	})
	guid := func() string {
		tr, _ := store.Terminal(state.TerminalKey{Facility: "A90", TrackNum: 7})
		return tr.GUID
	}()
	h.flush()

	var env struct {
		Type string           `msgpack:"type"`
		Data []map[string]any `msgpack:"data"`
	}
	select {
	case frame := <-scope.Out():
		if err := msgpack.Unmarshal(frame, &env); err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame")
	}
	if env.Type != TypeUpdate || len(env.Data) != 2 {
		t.Fatalf("env = %+v, want a position and a flightplan message", env)
	}
	kinds := map[string]bool{}
	for _, m := range env.Data {
		kind, _ := m["kind"].(string)
		kinds[kind] = true
		if g, _ := m["guid"].(string); g != guid {
			t.Errorf("%s guid = %q, want %q", kind, g, guid)
		}
	}
	if !kinds["position"] || !kinds["flightplan"] {
		t.Errorf("kinds = %v", kinds)
	}

	// A second update for the same track keeps the same GUID.
	store.ApplyTerminal(&decode.TerminalPartial{
		Facility: "A90", TrackNum: 7,
		Lat: 42.51, Lon: -71.11, HasPosition: true,
	})
	h.flush()
	select {
	case frame := <-scope.Out():
		if err := msgpack.Unmarshal(frame, &env); err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("no second frame")
	}
	if g, _ := env.Data[0]["guid"].(string); g != guid {
		t.Errorf("second update guid = %q, want stable %q", g, guid)
	}
}

func TestFlightPurgeArchivesAndRemoves(t *testing.T) {
	store := state.NewStore()
	h := testHub(store)

	var archived []state.FlightRecord
	h.OnFlightPurge(func(recs []state.FlightRecord) { archived = recs })

	old := time.Now().UTC().Add(-time.Hour)
	store.ApplyFlight(&decode.FlightPartial{GUFI: "a1", Source: "FP", Timestamp: old, Callsign: "AAL1"})
	store.ApplyFlight(&decode.FlightPartial{GUFI: "c1", Source: "UP", Timestamp: old, Status: "CANCELLED"})

	flights := h.Subscribe(Scope{Kind: ScopeFlights}, JSONCodec{})
	defer h.Unsubscribe(flights)
	recvEnvelope(t, flights)

	h.sweepFlights(time.Now().UTC())

	if len(archived) != 1 || archived[0].GUFI != "a1" {
		t.Errorf("archived %+v, cancelled flights must not be archived", archived)
	}
	env := recvEnvelope(t, flights)
	if env["type"] != TypeRemove {
		t.Fatalf("frame type = %v", env["type"])
	}
	gufis, _ := env["data"].([]any)
	if len(gufis) != 2 {
		t.Errorf("remove carries %d gufis, want both purged records", len(gufis))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	store := state.NewStore()
	h := testHub(store)
	s := h.Subscribe(Scope{Kind: ScopeFlights}, JSONCodec{})
	<-s.Out() // snapshot
	h.Unsubscribe(s)
	if _, ok := <-s.Out(); ok {
		t.Error("channel still open after unsubscribe")
	}
	if h.SubscriberCount() != 0 {
		t.Error("subscriber still registered")
	}
}
