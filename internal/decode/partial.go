package decode

import "time"

// Opt is a tri-state field in a partial update: absent, present-but-nil, or
// present with a value. Clearable fields (interim altitude, most notably)
// need the full three states because the merge rules distinguish an explicit
// wire-level clear from a source that simply didn't mention the field.
type Opt[T any] struct {
	set   bool
	null  bool
	value T
}

// Some returns a present Opt carrying v.
func Some[T any](v T) Opt[T] { return Opt[T]{set: true, value: v} }

// Null returns a present-but-nil Opt: the wire carried the element with
// xsi:nil="true".
func Null[T any]() Opt[T] { return Opt[T]{set: true, null: true} }

// Present reports whether the field appeared on the wire at all.
func (o Opt[T]) Present() bool { return o.set }

// IsNull reports whether the field appeared as an explicit nil.
func (o Opt[T]) IsNull() bool { return o.set && o.null }

// Get returns the value and whether a real (non-nil) value is present.
func (o Opt[T]) Get() (T, bool) {
	if o.set && !o.null {
		return o.value, true
	}
	var zero T
	return zero, false
}

// AltitudeKind discriminates the mutually exclusive assigned-altitude shapes.
type AltitudeKind int

const (
	AltSimple AltitudeKind = iota
	AltVFR
	AltVFRPlus
	AltBlock
)

// AssignedAltitude is one of the four assigned-altitude shapes. Exactly one
// shape is meaningful per value, selected by Kind.
type AssignedAltitude struct {
	Kind    AltitudeKind
	Simple  int // AltSimple: feet
	VFRPlus int // AltVFRPlus: feet
	Floor   int // AltBlock: feet
	Ceiling int // AltBlock: feet
}

// PositionUpdate carries the en-route track state from an SFDPS position
// element. Zero Lat/Lon means the element carried no usable position.
type PositionUpdate struct {
	Lat, Lon    float64
	HasPosition bool
	Altitude    int
	HasAltitude bool
	Speed       int
	HasSpeed    bool
	VX, VY      float64
	HasVelocity bool
	Coast       bool
	// ERAM-predicted target position/altitude; skipped when the wire marks
	// them invalid.
	TargetLat, TargetLon float64
	HasTarget            bool
	TargetAltitude       int
	HasTargetAltitude    bool
}

// ClearedUpdate is the clearance triple from a cleared element. The element
// is authoritative: absent attributes clear the corresponding stored field,
// so there are no presence flags here.
type ClearedUpdate struct {
	Heading string
	Speed   string
	Text    string
}

// HandoffUpdate carries whichever handoff sub-fields the wire mentioned.
type HandoffUpdate struct {
	Event        string
	HasEvent     bool
	Receiving    string
	Transferring string
	Accepting    string
}

// PointoutUpdate carries a point-out notification.
type PointoutUpdate struct {
	Originating string
	Receiving   string
}

// FIRCrossing is one estimated-elapsed-time entry.
type FIRCrossing struct {
	FIR      string        `json:"fir"`
	Elapsed  time.Duration `json:"elapsed"`
	Estimate string        `json:"estimate,omitempty"`
}

// FlightPartial is everything one SFDPS message said about one flight. Only
// fields actually present on the wire are populated; string fields use ""
// for absent, except where clear-semantics require an Opt.
type FlightPartial struct {
	GUFI      string
	Source    string
	Centre    string
	Timestamp time.Time

	FlightType  string
	Callsign    string
	ComputerIDs map[string]string // facility -> three-character ID
	Status      string
	Operator    string
	AftnAddress string

	Origin         string
	Destination    string
	Alternates     []string
	DepartActual   time.Time
	ArriveEstimate time.Time

	Assigned       *AssignedAltitude
	Interim        Opt[int]
	RequestedSpeed int

	ControllingFacility string
	ControllingSector   string

	Remarks          string
	CoordinationFix  string
	CoordinationTime string

	Position *PositionUpdate

	AssignedBeacon string
	CurrentBeacon  string

	Pointout   *PointoutUpdate
	Cleared    *ClearedUpdate // nil: element absent
	HasCleared bool
	Handoff    *HandoffUpdate

	AircraftType string
	Registration string
	Wake         string
	ModeS        string
	Equipment    string
	CommCodes    string
	NavCodes     string
	SurvCodes    string

	RouteText        string
	FlightRules      string
	ArrivalProcedure string
	ElapsedTimes     []FIRCrossing

	Supplemental map[string]string

	Raw string
}

// SurfacePartial is one SMES/ASDE-X surface report.
type SurfacePartial struct {
	Airport string
	TrackID string
	Full    bool

	Callsign     string
	Squawk       string
	AircraftType string
	TargetType   string

	Lat, Lon    float64
	HasPosition bool
	Altitude    int
	HasAltitude bool
	Speed       int
	HasSpeed    bool
	Heading     float64
	HasHeading  bool

	EramGUFI string
}

// TerminalPartial is one STARS track record from a TAIS message.
type TerminalPartial struct {
	Facility string
	TrackNum int

	Callsign     string
	AircraftType string
	Equipment    string
	Wake         string
	FlightRules  string
	Origin       string
	Destination  string
	EntryFix     string
	ExitFix      string

	AssignedBeacon string
	ReportedBeacon string
	RequestedAlt   int
	Runway         string
	ScratchPad1    string
	HasScratch1    bool
	ScratchPad2    string
	HasScratch2    bool
	Owner          string
	PendingHandoff string

	Lat, Lon     float64
	HasPosition  bool
	Altitude     int
	HasAltitude  bool
	GroundSpeed  int
	Track        float64
	HasVelocity  bool
	VerticalRate int
	ModeS        string
	Frozen       bool
	Pseudo       bool
}

// TowerEventKind tags the two captured TDES message shapes.
type TowerEventKind string

const (
	TowerEventClearance TowerEventKind = "datalink-clearance"
	TowerEventDeparture TowerEventKind = "departure"
)

// TowerPartial is one TDLS clearance or tower departure event.
type TowerPartial struct {
	Kind       TowerEventKind
	Airport    string
	AircraftID string
	Time       time.Time

	Beacon       string
	AircraftType string
	ComputerID   string
	GUFI         string
	Destination  string

	// Datalink clearance payload.
	Header string
	Body   string

	// Departure event payload.
	Gate          string
	Runway        string
	ClearanceTime time.Time
	TaxiTime      time.Time
	TakeoffTime   time.Time
}
