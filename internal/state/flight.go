// Package state holds the per-flight, per-surface-track, per-terminal-track,
// and per-tower-aircraft records the feeds merge into, together with the
// merge engine that applies decoded partial updates under the per-source
// precedence rules.
package state

import (
	"sync"
	"time"

	"swimfeed/internal/decode"
)

const (
	// PositionRingCap bounds the per-flight position history.
	PositionRingCap = 20
	// EventRingCap bounds the per-flight rolling event log. The archive
	// list alongside it is unbounded and only flushed at end of flight.
	EventRingCap = 50
)

// Status is the per-record lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusDropped   Status = "dropped"
	StatusCancelled Status = "cancelled"
)

// PositionFix is one entry of the position ring.
type PositionFix struct {
	Lat    float64   `json:"lat"`
	Lon    float64   `json:"lon"`
	Time   time.Time `json:"time"`
	Symbol string    `json:"symbol"`
}

// FlightEvent is one entry of the event log.
type FlightEvent struct {
	Time    time.Time `json:"time"`
	Source  string    `json:"source"`
	Centre  string    `json:"centre,omitempty"`
	Summary string    `json:"summary"`
	Raw     string    `json:"raw,omitempty"`
}

// FlightRecord is the merged state for one en-route flight identity. All
// mutation happens under the record's lock; readers take Snapshot copies.
// The lock is held by pointer so that snapshot copies of the struct are
// plain values.
type FlightRecord struct {
	mu *sync.Mutex

	GUFI string `json:"gufi"`
	GUID string `json:"guid"`

	Callsign    string            `json:"callsign,omitempty"`
	ComputerIDs map[string]string `json:"computerIds,omitempty"`
	Operator    string            `json:"operator,omitempty"`
	Status      Status            `json:"status"`

	Origin      string   `json:"origin,omitempty"`
	Destination string   `json:"destination,omitempty"`
	Alternates  []string `json:"alternates,omitempty"`

	AircraftType string `json:"acType,omitempty"`
	Wake         string `json:"wake,omitempty"`
	Equipment    string `json:"equipment,omitempty"`
	ModeS        string `json:"modeS,omitempty"`
	Registration string `json:"registration,omitempty"`

	AssignedSquawk string `json:"assignedSquawk,omitempty"`
	CurrentSquawk  string `json:"currentSquawk,omitempty"`
	FlightRules    string `json:"flightRules,omitempty"`
	FlightType     string `json:"flightType,omitempty"`

	RouteText        string `json:"route,omitempty"`
	OriginalRoute    string `json:"originalRoute,omitempty"`
	ArrivalProcedure string `json:"arrivalProc,omitempty"`
	Remarks          string `json:"remarks,omitempty"`

	// Exactly one assigned-altitude shape is set at a time.
	AltAssigned     int  `json:"altAssigned,omitempty"`
	AltVFR          bool `json:"altVfr,omitempty"`
	AltVFRPlus      int  `json:"altVfrPlus,omitempty"`
	AltBlockFloor   int  `json:"altBlockFloor,omitempty"`
	AltBlockCeiling int  `json:"altBlockCeiling,omitempty"`

	InterimAltitude  int `json:"interim,omitempty"`
	ReportedAltitude int `json:"reportedAlt,omitempty"`

	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
	GroundSpeed int     `json:"groundSpeed,omitempty"`
	VX          float64 `json:"vx,omitempty"`
	VY          float64 `json:"vy,omitempty"`
	Coast       bool    `json:"coast,omitempty"`

	PredictedLat      float64 `json:"predLat,omitempty"`
	PredictedLon      float64 `json:"predLon,omitempty"`
	PredictedAltitude int     `json:"predAlt,omitempty"`

	CoordinationFix  string `json:"coordFix,omitempty"`
	CoordinationTime string `json:"coordTime,omitempty"`

	DepartActual   time.Time `json:"departActual,omitzero"`
	ArriveEstimate time.Time `json:"arriveEstimate,omitzero"`

	ControllingFacility string `json:"controllingFacility,omitempty"`
	ControllingSector   string `json:"controllingSector,omitempty"`

	HandoffEvent        string `json:"handoffEvent,omitempty"`
	HandoffReceiving    string `json:"handoffReceiving,omitempty"`
	HandoffTransferring string `json:"handoffTransferring,omitempty"`
	HandoffAccepting    string `json:"handoffAccepting,omitempty"`
	HandoffForced       bool   `json:"handoffForced,omitempty"`

	PointoutOriginating string    `json:"pointoutOriginating,omitempty"`
	PointoutReceiving   string    `json:"pointoutReceiving,omitempty"`
	PointoutTime        time.Time `json:"pointoutTime,omitzero"`

	ClearedHeading string `json:"clearedHeading,omitempty"`
	ClearedSpeed   string `json:"clearedSpeed,omitempty"`
	ClearedText    string `json:"clearedText,omitempty"`

	AftnOriginator string `json:"aftnOriginator,omitempty"`
	TMIIDs         string `json:"tmiIds,omitempty"`
	FourthAdapted  string `json:"fourthAdapted,omitempty"`

	CommCodes string `json:"commCodes,omitempty"`
	NavCodes  string `json:"navCodes,omitempty"`
	SurvCodes string `json:"survCodes,omitempty"`

	ElapsedTimes []decode.FIRCrossing `json:"elapsedTimes,omitempty"`

	RequestedSpeed int `json:"requestedSpeed,omitempty"`

	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	LastPosition time.Time `json:"lastPosition,omitzero"`
	LastSource   string    `json:"lastSource,omitempty"`

	Positions []PositionFix `json:"positions,omitempty"`
	Events    []FlightEvent `json:"events,omitempty"`

	// EventArchive keeps every event for the end-of-flight archive record;
	// it is never trimmed.
	EventArchive []FlightEvent `json:"-"`
}

// HasAssignedAltitude reports whether any assigned-altitude shape is set.
func (f *FlightRecord) HasAssignedAltitude() bool {
	return f.AltAssigned != 0 || f.AltVFR || f.AltVFRPlus != 0 ||
		f.AltBlockFloor != 0 || f.AltBlockCeiling != 0
}

// clearAssignedAltitude wipes all four shapes; callers set exactly one after.
func (f *FlightRecord) clearAssignedAltitude() {
	f.AltAssigned = 0
	f.AltVFR = false
	f.AltVFRPlus = 0
	f.AltBlockFloor = 0
	f.AltBlockCeiling = 0
}

// clearHandoff wipes the handoff triple, event tag and forced flag.
func (f *FlightRecord) clearHandoff() {
	f.HandoffEvent = ""
	f.HandoffReceiving = ""
	f.HandoffTransferring = ""
	f.HandoffAccepting = ""
	f.HandoffForced = false
}

// symbol derives the one-character history symbol from the current state:
// a full-datablock bullet for a callsign at or below 23,000 ft, a backslash
// for any other callsign, a slash for a bare squawk, a plus otherwise.
func (f *FlightRecord) symbol() string {
	switch {
	case f.Callsign != "" && f.ReportedAltitude > 0 && f.ReportedAltitude <= 23000:
		return "•"
	case f.Callsign != "":
		return `\`
	case f.CurrentSquawk != "":
		return "/"
	default:
		return "+"
	}
}

// pushPosition appends the current coordinates to the position ring before
// they are overwritten. The ring is bounded at PositionRingCap.
func (f *FlightRecord) pushPosition(at time.Time) {
	if f.Lat == 0 && f.Lon == 0 {
		return
	}
	fix := PositionFix{Lat: f.Lat, Lon: f.Lon, Time: at, Symbol: f.symbol()}
	f.Positions = append(f.Positions, fix)
	if len(f.Positions) > PositionRingCap {
		f.Positions = f.Positions[len(f.Positions)-PositionRingCap:]
	}
}

// pushEvent appends an event to the rolling log and the archive list. The
// raw payload is only kept for sources worth keeping (the caller decides).
func (f *FlightRecord) pushEvent(ev FlightEvent) {
	f.Events = append(f.Events, ev)
	if len(f.Events) > EventRingCap {
		f.Events = f.Events[len(f.Events)-EventRingCap:]
	}
	f.EventArchive = append(f.EventArchive, ev)
}

// Snapshot returns a deep-enough copy for serialization: slices and the
// computer-ID map are copied so later mutation cannot race a marshal.
func (f *FlightRecord) Snapshot() FlightRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *FlightRecord) snapshotLocked() FlightRecord {
	cp := *f
	cp.mu = new(sync.Mutex)
	if f.ComputerIDs != nil {
		cp.ComputerIDs = make(map[string]string, len(f.ComputerIDs))
		for k, v := range f.ComputerIDs {
			cp.ComputerIDs[k] = v
		}
	}
	cp.Alternates = append([]string(nil), f.Alternates...)
	cp.ElapsedTimes = append([]decode.FIRCrossing(nil), f.ElapsedTimes...)
	cp.Positions = append([]PositionFix(nil), f.Positions...)
	cp.Events = append([]FlightEvent(nil), f.Events...)
	cp.EventArchive = append([]FlightEvent(nil), f.EventArchive...)
	return cp
}

// WithLock runs fn while holding the record lock. It exists for the few
// callers (cache restore, sweep) that need multi-field consistency without
// copying.
func (f *FlightRecord) WithLock(fn func(*FlightRecord)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}
