package state

import (
	"time"

	"github.com/google/uuid"
)

// newTerminalGUID mints the stable identifier carried by a terminal track
// for the lifetime of the track, across facility track-number reuse.
func newTerminalGUID() string { return uuid.NewString() }

// SurfaceKey identifies one airport-scoped surface radar track.
type SurfaceKey struct {
	Airport string `json:"airport"`
	TrackID string `json:"trackId"`
}

// SurfaceTrack is the merged state for one ASDE-X track. The enrichment
// overlay fields at the bottom are re-derived by the correlator on every
// broadcast and never fed back into SFDPS state.
type SurfaceTrack struct {
	Airport string `json:"airport"`
	TrackID string `json:"trackId"`

	Callsign     string `json:"callsign,omitempty"`
	Squawk       string `json:"squawk,omitempty"`
	AircraftType string `json:"acType,omitempty"`
	TargetType   string `json:"tgtType,omitempty"`

	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
	Altitude int     `json:"altitude,omitempty"`
	Speed    int     `json:"speed,omitempty"`
	Heading  float64 `json:"heading,omitempty"`

	EramGUFI string `json:"eramGufi,omitempty"`

	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`

	// Display-only enrichment overlay.
	Origin    string `json:"origin,omitempty"`
	Dest      string `json:"dest,omitempty"`
	Procedure string `json:"procedure,omitempty"`
	Route     string `json:"route,omitempty"`
	Gate      string `json:"gate,omitempty"`
	Runway    string `json:"runway,omitempty"`
	GateCode  string `json:"gateCode,omitempty"`
}

// TerminalKey identifies one facility-scoped STARS track.
type TerminalKey struct {
	Facility string `json:"facility"`
	TrackNum int    `json:"trackNum"`
}

// TerminalTrack is the merged state for one STARS track.
type TerminalTrack struct {
	Facility string `json:"facility"`
	TrackNum int    `json:"trackNum"`
	GUID     string `json:"guid"`

	Callsign     string `json:"callsign,omitempty"`
	AircraftType string `json:"acType,omitempty"`
	Equipment    string `json:"equipment,omitempty"`
	Wake         string `json:"wake,omitempty"`
	FlightRules  string `json:"flightRules,omitempty"`
	Origin       string `json:"origin,omitempty"`
	Destination  string `json:"destination,omitempty"`
	EntryFix     string `json:"entryFix,omitempty"`
	ExitFix      string `json:"exitFix,omitempty"`

	AssignedSquawk string `json:"assignedSquawk,omitempty"`
	ReportedSquawk string `json:"reportedSquawk,omitempty"`
	RequestedAlt   int    `json:"requestedAlt,omitempty"`
	Runway         string `json:"runway,omitempty"`
	ScratchPad1    string `json:"scratchPad1,omitempty"`
	ScratchPad2    string `json:"scratchPad2,omitempty"`
	Owner          string `json:"owner,omitempty"`
	PendingHandoff string `json:"pendingHandoff,omitempty"`

	Lat          float64 `json:"lat,omitempty"`
	Lon          float64 `json:"lon,omitempty"`
	Altitude     int     `json:"altitude,omitempty"`
	GroundSpeed  int     `json:"groundSpeed,omitempty"`
	Track        float64 `json:"track,omitempty"`
	VerticalRate int     `json:"verticalRate,omitempty"`
	ModeS        string  `json:"modeS,omitempty"`
	Frozen       bool    `json:"frozen,omitempty"`
	Pseudo       bool    `json:"pseudo,omitempty"`

	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// HasCallsign reports whether the track already carries a callsign, either
// from the feed or from a previous enrichment pass (scratchpad).
func (t *TerminalTrack) HasCallsign() bool {
	return t.Callsign != "" || t.ScratchPad1 != ""
}

// TowerKey identifies the event history for one aircraft at one airport.
type TowerKey struct {
	Airport    string `json:"airport"`
	AircraftID string `json:"aircraftId"`
}

// TowerEvent is one captured TDLS clearance or departure event.
type TowerEvent struct {
	Kind         string    `json:"kind"`
	Time         time.Time `json:"time"`
	Beacon       string    `json:"beacon,omitempty"`
	AircraftType string    `json:"acType,omitempty"`
	ComputerID   string    `json:"computerId,omitempty"`
	GUFI         string    `json:"gufi,omitempty"`
	Destination  string    `json:"destination,omitempty"`

	Header string `json:"header,omitempty"`
	Body   string `json:"body,omitempty"`

	Gate          string    `json:"gate,omitempty"`
	Runway        string    `json:"runway,omitempty"`
	ClearanceTime time.Time `json:"clearanceTime,omitzero"`
	TaxiTime      time.Time `json:"taxiTime,omitzero"`
	TakeoffTime   time.Time `json:"takeoffTime,omitzero"`
}

// TowerAircraft is the ordered event history for one (airport, aircraft).
type TowerAircraft struct {
	Airport    string       `json:"airport"`
	AircraftID string       `json:"aircraftId"`
	Events     []TowerEvent `json:"events"`
	LastSeen   time.Time    `json:"lastSeen"`
}
