package swim

import (
	"io"
	"log/slog"
	"testing"

	"swimfeed/internal/decode"
	"swimfeed/internal/state"
)

func testFeed() (*Feed, *state.Store, *decode.Telemetry) {
	store := state.NewStore()
	tel := decode.NewTelemetry()
	f := New(store, tel, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f, store, tel
}

func TestHandleEnRouteAppliesFlights(t *testing.T) {
	f, store, _ := testFeed()

	payload := `<MessageCollection>
 <message>
  <flight centre="ZBW" source="FP" timestamp="2025-03-01T12:00:00Z">
   <gufi>us.fdps.2025-03-01.000123</gufi>
   <flightIdentification aircraftIdentification="JBU123" computerId="456"/>
   <departure departurePoint="KBOS"/>
   <arrival arrivalPoint="KJFK"/>
  </flight>
 </message>
</MessageCollection>`
	f.handleEnRoute("sfdps.ZBW", []byte(payload))

	rec := store.Flight("us.fdps.2025-03-01.000123")
	if rec == nil {
		t.Fatal("flight not applied")
	}
	snap := rec.Snapshot()
	if snap.Callsign != "JBU123" || snap.Origin != "KBOS" || snap.Destination != "KJFK" {
		t.Errorf("record = %+v", snap)
	}
}

func TestHandleEnRouteParseFailureCounted(t *testing.T) {
	f, _, tel := testFeed()
	f.handleEnRoute("sfdps.ZBW", []byte("not xml at all <"))
	if tel.Drops()["sfdps-parse"] != 1 {
		t.Errorf("drops = %v", tel.Drops())
	}
	if len(tel.Samples("sfdps-parse-error")) != 1 {
		t.Error("failing payload not sampled")
	}
}

func TestHandleTracksSurface(t *testing.T) {
	f, store, _ := testFeed()

	payload := `<asdexMsg>
 <airport>KJFK</airport>
 <positionReport full="true">
  <track>1042</track>
  <latitude>40.641234</latitude>
  <longitude>-73.778901</longitude>
  <flightId><aircraftId>JBU123</aircraftId></flightId>
 </positionReport>
</asdexMsg>`
	f.handleTracks("SMES/KJFK", []byte(payload))

	tr, ok := store.Surface(state.SurfaceKey{Airport: "KJFK", TrackID: "1042"})
	if !ok {
		t.Fatal("surface track not applied")
	}
	if tr.Callsign != "JBU123" {
		t.Errorf("track = %+v", tr)
	}
}

func TestHandleTracksTerminal(t *testing.T) {
	f, store, _ := testFeed()

	payload := `<TATrackAndFlightPlan>
 <src>N90</src>
 <record>
  <track>
   <trackNum>447</trackNum>
   <lat>40.701</lat>
   <lon>-73.912</lon>
  </track>
  <flightPlan><acid>JBU123</acid></flightPlan>
 </record>
</TATrackAndFlightPlan>`
	f.handleTracks("TAIS.N90", []byte(payload))

	tr, ok := store.Terminal(state.TerminalKey{Facility: "N90", TrackNum: 447})
	if !ok {
		t.Fatal("terminal track not applied")
	}
	if tr.Callsign != "JBU123" {
		t.Errorf("track = %+v", tr)
	}
}

func TestHandleTracksTower(t *testing.T) {
	f, store, _ := testFeed()

	payload := `<TDLSCSPMessage>
 <airport>JFK</airport>
 <aircraftId>JBU123</aircraftId>
 <timestamp>03012025120534</timestamp>
 <cspHeader>PDC 001</cspHeader>
 <cspBody>CLEARED TO KBOS VIA ...</cspBody>
</TDLSCSPMessage>`
	f.handleTracks("TDES/JFK", []byte(payload))

	ac, ok := store.Tower(state.TowerKey{Airport: "JFK", AircraftID: "JBU123"})
	if !ok {
		t.Fatal("tower aircraft not applied")
	}
	if len(ac.Events) != 1 {
		t.Errorf("events = %+v", ac.Events)
	}
}

func TestHandleTracksIgnoredRootNotSampled(t *testing.T) {
	f, _, tel := testFeed()
	f.handleTracks("SMES/KJFK", []byte(`<SafetyLogicHoldBar/>`))
	if tel.Drops()["smes-ignored-root"] != 1 {
		t.Errorf("drops = %v", tel.Drops())
	}
	if len(tel.Samples("smes-ignored-root")) != 0 {
		t.Error("ignored root should not be sampled")
	}
}

func TestHandleTracksUnexpectedRootSampled(t *testing.T) {
	f, _, tel := testFeed()
	f.handleTracks("TAIS.N90", []byte(`<SomethingNew><field>1</field></SomethingNew>`))
	if tel.Drops()["tais-unexpected-root"] != 1 {
		t.Errorf("drops = %v", tel.Drops())
	}
	if len(tel.Samples("tais-unexpected-root")) != 1 {
		t.Error("unexpected root not sampled")
	}
}

func TestHandleTracksUnknownTopic(t *testing.T) {
	f, _, tel := testFeed()
	f.handleTracks("STDDS/other", []byte(`<asdexMsg/>`))
	if tel.Drops()["unknown-topic"] != 1 {
		t.Errorf("drops = %v", tel.Drops())
	}
}

func TestHasTopicPrefix(t *testing.T) {
	cases := []struct {
		topic string
		want  bool
	}{
		{"SMES/KJFK/position", true},
		{"SMES.KJFK", true},
		{"SMES", true},
		{"SMESX/KJFK", false},
		{"TAIS/N90", false},
	}
	for _, c := range cases {
		if got := hasTopicPrefix(c.topic, "SMES"); got != c.want {
			t.Errorf("hasTopicPrefix(%q) = %v, want %v", c.topic, got, c.want)
		}
	}
}

func TestSessionDeliverCountsMessages(t *testing.T) {
	var got string
	s := NewSession(SessionConfig{Name: "sfdps"}, func(topic string, payload []byte) {
		got = topic
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	s.deliver("sfdps.ZBW", []byte("x"))
	s.deliver("sfdps.ZNY", []byte("y"))

	st := s.Status()
	if st.Messages != 2 || st.LastMessage.IsZero() {
		t.Errorf("status = %+v", st)
	}
	if got != "sfdps.ZNY" {
		t.Errorf("handler topic = %q", got)
	}
}
