// Package correlate joins surface tracks to their en-route flight plans and
// tower clearance history for display. Everything it produces is overlay:
// en-route state is never written back.
package correlate

import (
	"strings"
	"sync"
	"time"

	"swimfeed/internal/state"
)

// indexMaxAge bounds how stale the callsign secondary index may get before
// a lookup rebuilds it.
const indexMaxAge = 30 * time.Second

// Correlator enriches surface-track batches before broadcast.
type Correlator struct {
	store *state.Store
	gates *GateCodes

	mu         sync.Mutex
	byCallsign map[string][]state.FlightRecord
	builtAt    time.Time
}

// New returns a correlator over the store, using the gate-code pattern
// table for short codes.
func New(store *state.Store, gates *GateCodes) *Correlator {
	return &Correlator{store: store, gates: gates}
}

// EnrichBatch runs Enrich over a batch in place.
func (c *Correlator) EnrichBatch(tracks []state.SurfaceTrack) {
	for i := range tracks {
		c.Enrich(&tracks[i])
	}
}

// Enrich fills the display overlay of one surface track: flight-plan data
// from the en-route store, gate and runway from the tower history, and the
// short gate code.
func (c *Correlator) Enrich(t *state.SurfaceTrack) {
	fl, ok := c.lookupFlight(t)
	if ok {
		t.Origin = fl.Origin
		t.Dest = fl.Destination
		t.Procedure = fl.ArrivalProcedure
		t.Route = fl.RouteText
	}

	if t.Callsign != "" {
		if gate, runway, dest, found := c.lookupTower(t.Airport, t.Callsign); found {
			t.Gate = gate
			t.Runway = runway
			if t.Dest == "" {
				t.Dest = dest
			}
		}
	}

	if c.gates != nil {
		if code, ok := c.gates.Match(t.Airport, t.Route); ok {
			t.GateCode = code
		} else if t.Dest != "" {
			t.GateCode = lidOf(t.Dest)
		}
	}
}

// lookupFlight finds the en-route flight for a surface track: direct ERAM
// cross-reference first, then the callsign index with the departure leg
// preferred over the arrival leg (airlines reuse callsigns for turnovers).
func (c *Correlator) lookupFlight(t *state.SurfaceTrack) (state.FlightRecord, bool) {
	if t.EramGUFI != "" {
		if rec := c.store.Flight(t.EramGUFI); rec != nil {
			return rec.Snapshot(), true
		}
	}
	if t.Callsign == "" {
		return state.FlightRecord{}, false
	}

	cands := c.callsignIndex()[strings.ToUpper(t.Callsign)]
	if len(cands) == 0 {
		return state.FlightRecord{}, false
	}
	for _, fl := range cands {
		if sameAirport(fl.Origin, t.Airport) {
			return fl, true
		}
	}
	for _, fl := range cands {
		if sameAirport(fl.Destination, t.Airport) {
			return fl, true
		}
	}
	return cands[0], true
}

// lookupTower finds the clearance/departure data for a callsign at an
// airport, case-insensitively, newest event first.
func (c *Correlator) lookupTower(airport, callsign string) (gate, runway, dest string, found bool) {
	for _, ac := range c.store.TowerSnapshots("") {
		if !sameAirport(ac.Airport, airport) || !strings.EqualFold(ac.AircraftID, callsign) {
			continue
		}
		found = true
		for i := len(ac.Events) - 1; i >= 0; i-- {
			ev := ac.Events[i]
			if gate == "" {
				gate = ev.Gate
			}
			if runway == "" {
				runway = ev.Runway
			}
			if dest == "" {
				dest = ev.Destination
			}
		}
	}
	return gate, runway, dest, found
}

// callsignIndex returns the secondary index, rebuilding it when stale.
func (c *Correlator) callsignIndex() map[string][]state.FlightRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byCallsign != nil && time.Since(c.builtAt) < indexMaxAge {
		return c.byCallsign
	}

	idx := make(map[string][]state.FlightRecord)
	for _, fl := range c.store.FlightSnapshots(func(f *state.FlightRecord) bool {
		return f.Callsign != "" && f.Status != state.StatusCancelled
	}) {
		key := strings.ToUpper(fl.Callsign)
		idx[key] = append(idx[key], fl)
	}
	c.byCallsign = idx
	c.builtAt = time.Now()
	return idx
}

// sameAirport tolerates the ICAO-vs-LID spelling difference.
func sameAirport(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	return a == b || lidOf(a) == lidOf(b)
}

// lidOf strips the leading K or P from a 4-letter ICAO code.
func lidOf(id string) string {
	if len(id) == 4 && (id[0] == 'K' || id[0] == 'P') {
		return id[1:]
	}
	return id
}
