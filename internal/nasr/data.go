// Package nasr downloads, caches and indexes the FAA 28-day aeronautical
// data subscription: navaids, fixes, airports, airways, SID/STAR route
// definitions and instrument approach centerlines. The index is immutable
// once built; the Manager swaps a new one in on cycle rollover.
package nasr

import (
	"strings"
	"time"

	"swimfeed/internal/geo"
)

// Navaid is one radio navigation aid. IDs are not unique nationwide; the
// same identifier can exist at several locations.
type Navaid struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Name   string    `json:"name"`
	Pos    geo.Point `json:"pos"`
	MagVar float64   `json:"magVar"`
}

// Fix is one named en-route or terminal fix.
type Fix struct {
	ID  string    `json:"id"`
	Pos geo.Point `json:"pos"`
}

// Airport is one landing facility, addressable by FAA LID and, when
// assigned, ICAO identifier.
type Airport struct {
	LID    string    `json:"lid"`
	ICAO   string    `json:"icao,omitempty"`
	Name   string    `json:"name"`
	Pos    geo.Point `json:"pos"`
	MagVar float64   `json:"magVar"`

	// Class is the derived airspace class (B, C, D or E) for public
	// operational airports, empty otherwise.
	Class string `json:"class,omitempty"`
}

// Airway is one ordered fix sequence.
type Airway struct {
	ID    string   `json:"id"`
	Fixes []string `json:"fixes"`
}

// ProcKind distinguishes departures from arrivals.
type ProcKind string

const (
	ProcSID  ProcKind = "sid"
	ProcSTAR ProcKind = "star"
)

// Transition is one named procedure transition in flight direction. For a
// STAR the enroute endpoint is the first fix, for a SID the last.
type Transition struct {
	Name     string   `json:"name"`
	Fixes    []string `json:"fixes"`
	Endpoint string   `json:"endpoint"`
}

// Procedure is one SID or STAR instance at one airport. Body holds the
// common portion in flight direction; Transitions is keyed both by the
// transition name and by its enroute endpoint fix.
type Procedure struct {
	Code        string                 `json:"code"`
	Name        string                 `json:"name"`
	Kind        ProcKind               `json:"kind"`
	Airport     string                 `json:"airport"`
	Body        []string               `json:"body"`
	Transitions map[string]*Transition `json:"transitions,omitempty"`
}

// Centerline is one instrument-approach final in plottable form: threshold
// to a 15 NM outer endpoint along the localizer course.
type Centerline struct {
	Airport   string    `json:"airport"`
	Runway    string    `json:"runway"`
	LocID     string    `json:"locId"`
	System    string    `json:"system"`
	Course    float64   `json:"course"`
	Threshold geo.Point `json:"threshold"`
	Outer     geo.Point `json:"outer"`
}

// Index is one fully-built cycle of aeronautical data.
type Index struct {
	Cycle    time.Time
	LoadedAt time.Time

	navaids  map[string][]Navaid
	fixes    map[string][]Fix
	byLID    map[string]*Airport
	byICAO   map[string]*Airport
	airways  map[string]*Airway
	procs    map[string][]*Procedure
	finals   []Centerline
	overlays []Airport
}

// FindNavaid resolves a navaid identifier, disambiguating by proximity to
// the anchor when the identifier exists at several locations.
func (x *Index) FindNavaid(id string, near geo.Point) (Navaid, bool) {
	cands := x.navaids[strings.ToUpper(id)]
	if len(cands) == 0 {
		return Navaid{}, false
	}
	pts := make([]geo.Point, len(cands))
	for i, c := range cands {
		pts[i] = c.Pos
	}
	return cands[geo.Nearest(near, pts)], true
}

// FindFix resolves a fix identifier, nearest-wins on duplicates.
func (x *Index) FindFix(id string, near geo.Point) (Fix, bool) {
	cands := x.fixes[strings.ToUpper(id)]
	if len(cands) == 0 {
		return Fix{}, false
	}
	pts := make([]geo.Point, len(cands))
	for i, c := range cands {
		pts[i] = c.Pos
	}
	return cands[geo.Nearest(near, pts)], true
}

// FindAirport resolves an airport by FAA LID first, then ICAO.
func (x *Index) FindAirport(id string) (Airport, bool) {
	id = strings.ToUpper(id)
	if a := x.byLID[id]; a != nil {
		return *a, true
	}
	if a := x.byICAO[id]; a != nil {
		return *a, true
	}
	return Airport{}, false
}

// Find resolves a bare route token: navaid first, then fix, then airport.
// It returns the point and which family matched.
func (x *Index) Find(id string, near geo.Point) (geo.Point, string, bool) {
	if n, ok := x.FindNavaid(id, near); ok {
		return n.Pos, "navaid", true
	}
	if f, ok := x.FindFix(id, near); ok {
		return f.Pos, "fix", true
	}
	if a, ok := x.FindAirport(id); ok {
		return a.Pos, "airport", true
	}
	return geo.Point{}, "", false
}

// Airway returns one airway definition.
func (x *Index) Airway(id string) (*Airway, bool) {
	a := x.airways[strings.ToUpper(id)]
	return a, a != nil
}

// Airways returns every airway whose identifier starts with the given
// letter class, or all of them for "".
func (x *Index) Airways(class string) []*Airway {
	var out []*Airway
	for id, a := range x.airways {
		if class == "" || strings.HasPrefix(id, strings.ToUpper(class)) {
			out = append(out, a)
		}
	}
	return out
}

// Procedures returns every instance of a procedure name (one per airport).
func (x *Index) Procedures(name string) []*Procedure {
	return x.procs[strings.ToUpper(name)]
}

// ProceduresAt returns every procedure of a kind serving an airport.
func (x *Index) ProceduresAt(airport string, kind ProcKind) []*Procedure {
	airport = strings.ToUpper(airport)
	var out []*Procedure
	for _, insts := range x.procs {
		for _, p := range insts {
			if p.Airport == airport && (kind == "" || p.Kind == kind) {
				out = append(out, p)
			}
		}
	}
	return out
}

// Centerlines returns the approach finals for one airport, or all of them
// for "".
func (x *Index) Centerlines(airport string) []Centerline {
	if airport == "" {
		return x.finals
	}
	airport = strings.ToUpper(airport)
	var out []Centerline
	for _, c := range x.finals {
		if c.Airport == airport {
			out = append(out, c)
		}
	}
	return out
}

// Navaids returns every navaid, duplicates included.
func (x *Index) Navaids() []Navaid {
	var out []Navaid
	for _, cands := range x.navaids {
		out = append(out, cands...)
	}
	return out
}

// Airports returns every airport.
func (x *Index) Airports() []Airport {
	out := make([]Airport, 0, len(x.byLID))
	for _, a := range x.byLID {
		out = append(out, *a)
	}
	return out
}

// ClassAirports returns the public operational airports with a derived
// airspace class, for map overlays.
func (x *Index) ClassAirports() []Airport {
	return x.overlays
}

// Counts summarizes the index for the status endpoint.
func (x *Index) Counts() map[string]int {
	return map[string]int{
		"navaids":     len(x.navaids),
		"fixes":       len(x.fixes),
		"airports":    len(x.byLID),
		"airways":     len(x.airways),
		"procedures":  len(x.procs),
		"centerlines": len(x.finals),
	}
}
