package state

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store owns the four keyed record maps and their dirty sets. Flight records
// carry their own locks since they take by far the most traffic; the other
// three families are mutated under their map lock, which still serializes
// updates per record.
type Store struct {
	fmu     sync.RWMutex
	flights map[string]*FlightRecord

	smu     sync.RWMutex
	surface map[SurfaceKey]*SurfaceTrack

	tmu      sync.RWMutex
	terminal map[TerminalKey]*TerminalTrack

	wmu   sync.RWMutex
	tower map[TowerKey]*TowerAircraft

	DirtyFlights  *DirtySet[string]
	DirtySurface  *DirtySet[SurfaceKey]
	DirtyTerminal *DirtySet[TerminalKey]
	DirtyTower    *DirtySet[TowerKey]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		flights:       make(map[string]*FlightRecord),
		surface:       make(map[SurfaceKey]*SurfaceTrack),
		terminal:      make(map[TerminalKey]*TerminalTrack),
		tower:         make(map[TowerKey]*TowerAircraft),
		DirtyFlights:  NewDirtySet[string](),
		DirtySurface:  NewDirtySet[SurfaceKey](),
		DirtyTerminal: NewDirtySet[TerminalKey](),
		DirtyTower:    NewDirtySet[TowerKey](),
	}
}

// Flight returns the record for a GUFI, or nil.
func (s *Store) Flight(gufi string) *FlightRecord {
	s.fmu.RLock()
	defer s.fmu.RUnlock()
	return s.flights[gufi]
}

func (s *Store) getOrCreateFlight(gufi string, now time.Time) *FlightRecord {
	s.fmu.RLock()
	rec := s.flights[gufi]
	s.fmu.RUnlock()
	if rec != nil {
		return rec
	}

	s.fmu.Lock()
	defer s.fmu.Unlock()
	if rec = s.flights[gufi]; rec != nil {
		return rec
	}
	rec = &FlightRecord{
		mu:        new(sync.Mutex),
		GUFI:      gufi,
		GUID:      uuid.NewString(),
		Status:    StatusActive,
		FirstSeen: now,
		LastSeen:  now,
	}
	s.flights[gufi] = rec
	return rec
}

// RestoreFlight inserts a warm-cache record, keeping its original GUID. It
// is only called during startup before any feed traffic.
func (s *Store) RestoreFlight(rec *FlightRecord) {
	if rec.GUFI == "" {
		return
	}
	if rec.GUID == "" {
		rec.GUID = uuid.NewString()
	}
	rec.mu = new(sync.Mutex)
	s.fmu.Lock()
	s.flights[rec.GUFI] = rec
	s.fmu.Unlock()
}

// FlightSnapshots returns copies of all records accepted by filter; a nil
// filter accepts everything.
func (s *Store) FlightSnapshots(filter func(*FlightRecord) bool) []FlightRecord {
	s.fmu.RLock()
	recs := make([]*FlightRecord, 0, len(s.flights))
	for _, r := range s.flights {
		recs = append(recs, r)
	}
	s.fmu.RUnlock()

	out := make([]FlightRecord, 0, len(recs))
	for _, r := range recs {
		r.mu.Lock()
		if filter == nil || filter(r) {
			out = append(out, r.snapshotLocked())
		}
		r.mu.Unlock()
	}
	return out
}

// FlightCount returns the number of non-cancelled flight records.
func (s *Store) FlightCount() int {
	s.fmu.RLock()
	recs := make([]*FlightRecord, 0, len(s.flights))
	for _, r := range s.flights {
		recs = append(recs, r)
	}
	s.fmu.RUnlock()

	n := 0
	for _, r := range recs {
		r.mu.Lock()
		if r.Status != StatusCancelled {
			n++
		}
		r.mu.Unlock()
	}
	return n
}

// PurgeFlights removes records whose last-seen is older than the idle
// window. It returns snapshots of the purged records so the caller can emit
// deletion messages and archive the active/dropped ones.
func (s *Store) PurgeFlights(idle time.Duration, now time.Time) []FlightRecord {
	cutoff := now.Add(-idle)

	s.fmu.Lock()
	var stale []*FlightRecord
	for gufi, r := range s.flights {
		r.mu.Lock()
		old := r.LastSeen.Before(cutoff)
		r.mu.Unlock()
		if old {
			stale = append(stale, r)
			delete(s.flights, gufi)
		}
	}
	s.fmu.Unlock()

	out := make([]FlightRecord, 0, len(stale))
	for _, r := range stale {
		out = append(out, r.Snapshot())
	}
	return out
}

// ExpirePointouts clears point-out triples older than the given age and
// marks the affected records dirty.
func (s *Store) ExpirePointouts(maxAge time.Duration, now time.Time) {
	cutoff := now.Add(-maxAge)

	s.fmu.RLock()
	recs := make([]*FlightRecord, 0, len(s.flights))
	for _, r := range s.flights {
		recs = append(recs, r)
	}
	s.fmu.RUnlock()

	for _, r := range recs {
		r.mu.Lock()
		if r.PointoutOriginating != "" && !r.PointoutTime.IsZero() && r.PointoutTime.Before(cutoff) {
			r.PointoutOriginating = ""
			r.PointoutReceiving = ""
			r.PointoutTime = time.Time{}
			s.DirtyFlights.Mark(r.GUFI)
		}
		r.mu.Unlock()
	}
}

// Surface returns a copy of one surface track.
func (s *Store) Surface(key SurfaceKey) (SurfaceTrack, bool) {
	s.smu.RLock()
	defer s.smu.RUnlock()
	if t := s.surface[key]; t != nil {
		return *t, true
	}
	return SurfaceTrack{}, false
}

// SurfaceSnapshots returns copies of all tracks for an airport; an empty
// airport returns every track.
func (s *Store) SurfaceSnapshots(airport string) []SurfaceTrack {
	s.smu.RLock()
	defer s.smu.RUnlock()
	out := make([]SurfaceTrack, 0, len(s.surface))
	for k, t := range s.surface {
		if airport == "" || k.Airport == airport {
			out = append(out, *t)
		}
	}
	return out
}

// PurgeSurface removes stale surface tracks and returns their keys.
func (s *Store) PurgeSurface(idle time.Duration, now time.Time) []SurfaceKey {
	cutoff := now.Add(-idle)
	s.smu.Lock()
	defer s.smu.Unlock()
	var removed []SurfaceKey
	for k, t := range s.surface {
		if t.LastSeen.Before(cutoff) {
			delete(s.surface, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// Terminal returns a copy of one terminal track.
func (s *Store) Terminal(key TerminalKey) (TerminalTrack, bool) {
	s.tmu.RLock()
	defer s.tmu.RUnlock()
	if t := s.terminal[key]; t != nil {
		return *t, true
	}
	return TerminalTrack{}, false
}

// TerminalSnapshots returns copies of all tracks for a facility; an empty
// facility returns every track.
func (s *Store) TerminalSnapshots(facility string) []TerminalTrack {
	s.tmu.RLock()
	defer s.tmu.RUnlock()
	out := make([]TerminalTrack, 0, len(s.terminal))
	for k, t := range s.terminal {
		if facility == "" || k.Facility == facility {
			out = append(out, *t)
		}
	}
	return out
}

// UpdateTerminal runs fn against the stored track under the map lock. It is
// used by the enrichment loop to mutate tracks it matched.
func (s *Store) UpdateTerminal(key TerminalKey, fn func(*TerminalTrack)) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	t := s.terminal[key]
	if t == nil {
		return false
	}
	fn(t)
	s.DirtyTerminal.Mark(key)
	return true
}

// PurgeTerminal removes stale terminal tracks and returns copies of the
// removed records, so deletion messages can still carry their GUIDs.
func (s *Store) PurgeTerminal(idle time.Duration, now time.Time) []TerminalTrack {
	cutoff := now.Add(-idle)
	s.tmu.Lock()
	defer s.tmu.Unlock()
	var removed []TerminalTrack
	for k, t := range s.terminal {
		if t.LastSeen.Before(cutoff) {
			delete(s.terminal, k)
			removed = append(removed, *t)
		}
	}
	return removed
}

// Tower returns a copy of one tower-aircraft history.
func (s *Store) Tower(key TowerKey) (TowerAircraft, bool) {
	s.wmu.RLock()
	defer s.wmu.RUnlock()
	if t := s.tower[key]; t != nil {
		cp := *t
		cp.Events = append([]TowerEvent(nil), t.Events...)
		return cp, true
	}
	return TowerAircraft{}, false
}

// TowerSnapshots returns copies of all histories for an airport; an empty
// airport returns everything.
func (s *Store) TowerSnapshots(airport string) []TowerAircraft {
	s.wmu.RLock()
	defer s.wmu.RUnlock()
	out := make([]TowerAircraft, 0, len(s.tower))
	for k, t := range s.tower {
		if airport == "" || k.Airport == airport {
			cp := *t
			cp.Events = append([]TowerEvent(nil), t.Events...)
			out = append(out, cp)
		}
	}
	return out
}

// PurgeTower removes stale tower histories and returns their keys.
func (s *Store) PurgeTower(idle time.Duration, now time.Time) []TowerKey {
	cutoff := now.Add(-idle)
	s.wmu.Lock()
	defer s.wmu.Unlock()
	var removed []TowerKey
	for k, t := range s.tower {
		if t.LastSeen.Before(cutoff) {
			delete(s.tower, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// TerminalByModeS scans a facility (or all facilities for "") for a track
// with the given Mode-S address. Used by the enrichment redirect rule. The
// comparison is case-insensitive: the terminal feed spells addresses in
// upper case while ADS-B aggregators use lower case.
func (s *Store) TerminalByModeS(facility, modeS string) (TerminalKey, bool) {
	s.tmu.RLock()
	defer s.tmu.RUnlock()
	for k, t := range s.terminal {
		if facility != "" && k.Facility != facility {
			continue
		}
		if strings.EqualFold(t.ModeS, modeS) {
			return k, true
		}
	}
	return TerminalKey{}, false
}

// TerminalCallsignInUse reports whether any track in the facility already
// displays the callsign.
func (s *Store) TerminalCallsignInUse(facility, callsign string) bool {
	s.tmu.RLock()
	defer s.tmu.RUnlock()
	for k, t := range s.terminal {
		if k.Facility != facility {
			continue
		}
		if t.Callsign == callsign || t.ScratchPad1 == callsign {
			return true
		}
	}
	return false
}
