package state

import (
	"fmt"
	"strings"
	"time"

	"swimfeed/internal/decode"
)

// Source tags, as carried in the source attribute of SFDPS messages.
const (
	SourceFlightPlan     = "FP" // canonical flight-plan state
	SourceAssumedHandoff = "AH" // canonical; forced-handoff detection applies
	SourceUpdate         = "UP" // canonical general update
	SourceInterim        = "HU" // dedicated interim-altitude message
	SourceLocalHandoff   = "LH"
	SourceHeartbeat      = "FH" // carries Mode-C, never assignment
	SourceTrack          = "TH" // position/track history
)

// canonicalSources lists the message types with clear authority: when one of
// these omits the cleared element, the stored clearance triple is wiped, and
// an absent interim altitude clears the stored interim. Adding a source here
// is a considered decision, not a default.
var canonicalSources = map[string]bool{
	SourceFlightPlan:     true,
	SourceAssumedHandoff: true,
	SourceUpdate:         true,
}

// positionEpsilon is the per-axis degree delta below which a position update
// is treated as the same point and not pushed into the history ring.
const positionEpsilon = 0.0001

// ApplyFlight merges one decoded SFDPS partial into its record, marking the
// record dirty. The record is created on first sight of the identifier.
func (s *Store) ApplyFlight(p *decode.FlightPartial) *FlightRecord {
	now := p.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rec := s.getOrCreateFlight(p.GUFI, now)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	heartbeat := p.Source == SourceHeartbeat
	position := p.Source == SourceTrack
	canonical := canonicalSources[p.Source]

	var notes []string

	if p.Callsign != "" {
		rec.Callsign = p.Callsign
	}
	for fac, cid := range p.ComputerIDs {
		if rec.ComputerIDs == nil {
			rec.ComputerIDs = make(map[string]string)
		}
		rec.ComputerIDs[fac] = cid
	}

	if p.Status != "" {
		applyStatus(rec, p.Status)
	}

	// Operator: a longer descriptive name replaces a shorter one, but a
	// short code arriving later never shrinks the stored value.
	if len(p.Operator) > len(rec.Operator) {
		rec.Operator = p.Operator
	}

	if p.AftnAddress != "" {
		rec.AftnOriginator = p.AftnAddress
	}
	if p.Origin != "" {
		rec.Origin = p.Origin
	}
	if p.Destination != "" {
		rec.Destination = p.Destination
	}
	if len(p.Alternates) > 0 {
		rec.Alternates = append([]string(nil), p.Alternates...)
	}
	if p.FlightType != "" {
		rec.FlightType = p.FlightType
	}
	if p.FlightRules != "" {
		rec.FlightRules = p.FlightRules
	}
	if !p.DepartActual.IsZero() {
		rec.DepartActual = p.DepartActual
	}
	if !p.ArriveEstimate.IsZero() {
		rec.ArriveEstimate = p.ArriveEstimate
	}

	// Heartbeats carry Mode-C, not an assignment; they never touch the
	// assigned altitude.
	if p.Assigned != nil && !heartbeat {
		rec.clearAssignedAltitude()
		switch p.Assigned.Kind {
		case decode.AltSimple:
			rec.AltAssigned = p.Assigned.Simple
		case decode.AltVFR:
			rec.AltVFR = true
		case decode.AltVFRPlus:
			rec.AltVFRPlus = p.Assigned.VFRPlus
		case decode.AltBlock:
			rec.AltBlockFloor = p.Assigned.Floor
			rec.AltBlockCeiling = p.Assigned.Ceiling
		}
	}

	switch {
	case p.Interim.IsNull():
		if rec.InterimAltitude != 0 {
			notes = append(notes, "Interim altitude cleared (nil)")
		}
		rec.InterimAltitude = 0
	case p.Interim.Present():
		if v, ok := p.Interim.Get(); ok {
			rec.InterimAltitude = v
		}
	case canonical || p.Source == SourceInterim:
		// For these sources absence is authoritative.
		if rec.InterimAltitude != 0 {
			notes = append(notes, "Interim altitude cleared (absent)")
		}
		rec.InterimAltitude = 0
	}

	if p.ControllingFacility != "" {
		rec.ControllingFacility = p.ControllingFacility
		rec.ControllingSector = p.ControllingSector
	}
	if p.Remarks != "" {
		rec.Remarks = p.Remarks
	}
	if p.CoordinationFix != "" {
		rec.CoordinationFix = p.CoordinationFix
	}
	if p.CoordinationTime != "" {
		rec.CoordinationTime = p.CoordinationTime
	}
	if p.RequestedSpeed != 0 {
		rec.RequestedSpeed = p.RequestedSpeed
	}

	if p.Position != nil {
		applyPosition(rec, p.Position, now)
	}

	if p.AssignedBeacon != "" {
		rec.AssignedSquawk = p.AssignedBeacon
	}
	if p.CurrentBeacon != "" {
		rec.CurrentSquawk = p.CurrentBeacon
	}

	if p.Pointout != nil {
		rec.PointoutOriginating = p.Pointout.Originating
		rec.PointoutReceiving = p.Pointout.Receiving
		rec.PointoutTime = now
		notes = append(notes, fmt.Sprintf("Point-out %s -> %s", p.Pointout.Originating, p.Pointout.Receiving))
	}

	// The cleared element is authoritative when present; a canonical
	// message that omits it entirely wipes the triple.
	if p.HasCleared {
		rec.ClearedHeading = p.Cleared.Heading
		rec.ClearedSpeed = p.Cleared.Speed
		rec.ClearedText = p.Cleared.Text
	} else if canonical {
		rec.ClearedHeading = ""
		rec.ClearedSpeed = ""
		rec.ClearedText = ""
	}

	if p.Handoff != nil {
		applyHandoff(rec, p, &notes)
	}

	if p.AircraftType != "" {
		rec.AircraftType = p.AircraftType
	}
	if p.Registration != "" {
		rec.Registration = p.Registration
	}
	if p.Wake != "" {
		rec.Wake = p.Wake
	}
	if p.ModeS != "" {
		rec.ModeS = p.ModeS
	}
	if p.Equipment != "" {
		rec.Equipment = p.Equipment
	}
	if p.CommCodes != "" {
		rec.CommCodes = p.CommCodes
	}
	if p.NavCodes != "" {
		rec.NavCodes = p.NavCodes
	}
	if p.SurvCodes != "" {
		rec.SurvCodes = p.SurvCodes
	}

	if p.RouteText != "" {
		if rec.OriginalRoute == "" {
			rec.OriginalRoute = p.RouteText
		}
		rec.RouteText = p.RouteText
	}
	if p.ArrivalProcedure != "" {
		rec.ArrivalProcedure = p.ArrivalProcedure
	}
	if len(p.ElapsedTimes) > 0 {
		rec.ElapsedTimes = append([]decode.FIRCrossing(nil), p.ElapsedTimes...)
	}

	if v := p.Supplemental["TMI_IDS"]; v != "" {
		rec.TMIIDs = v
	}
	if v := p.Supplemental["4TH_ADAPTED_FIELD"]; v != "" {
		rec.FourthAdapted = v
	}

	// Handoff completion: once the controlling unit equals the receiving
	// unit the transfer is done and the whole triple goes away.
	if rec.HandoffReceiving != "" && controllingUnit(rec) == rec.HandoffReceiving {
		rec.clearHandoff()
		notes = append(notes, "Handoff complete")
	}

	rec.LastSeen = now
	rec.LastSource = p.Source

	ev := FlightEvent{
		Time:    now,
		Source:  p.Source,
		Centre:  p.Centre,
		Summary: buildSummary(p, notes),
	}
	// Heartbeat and position traffic dominates the feed; keeping its raw
	// payloads would explode memory.
	if !heartbeat && !position {
		ev.Raw = p.Raw
	}
	rec.pushEvent(ev)

	s.DirtyFlights.Mark(rec.GUFI)
	return rec
}

func applyStatus(rec *FlightRecord, status string) {
	s := strings.ToUpper(status)
	switch {
	case strings.Contains(s, "CANCEL"):
		rec.Status = StatusCancelled
	case strings.Contains(s, "DROP"):
		if rec.Status != StatusCancelled {
			rec.Status = StatusDropped
		}
	case strings.Contains(s, "ACTIVE"):
		if rec.Status != StatusCancelled {
			rec.Status = StatusActive
		}
	}
}

func applyPosition(rec *FlightRecord, u *decode.PositionUpdate, now time.Time) {
	if u.HasPosition {
		moved := abs(u.Lat-rec.Lat) > positionEpsilon || abs(u.Lon-rec.Lon) > positionEpsilon
		if moved {
			rec.pushPosition(rec.LastPosition)
			rec.Lat = u.Lat
			rec.Lon = u.Lon
		}
		rec.LastPosition = now
	}
	if u.HasAltitude {
		rec.ReportedAltitude = u.Altitude
	}
	if u.HasSpeed {
		rec.GroundSpeed = u.Speed
	}
	if u.HasVelocity {
		rec.VX = u.VX
		rec.VY = u.VY
	}
	rec.Coast = u.Coast
	if u.HasTarget {
		rec.PredictedLat = u.TargetLat
		rec.PredictedLon = u.TargetLon
	}
	if u.HasTargetAltitude {
		rec.PredictedAltitude = u.TargetAltitude
	}
}

func applyHandoff(rec *FlightRecord, p *decode.FlightPartial, notes *[]string) {
	h := p.Handoff
	if h.HasEvent {
		// An explicit event tag makes the element authoritative for the
		// whole triple.
		rec.HandoffEvent = h.Event
		rec.HandoffReceiving = h.Receiving
		rec.HandoffTransferring = h.Transferring
		rec.HandoffAccepting = h.Accepting
		rec.HandoffForced = p.Source == SourceAssumedHandoff &&
			(strings.HasPrefix(h.Event, "ACCEPT") || h.Event == "EXECUTION")
		*notes = append(*notes, "Handoff "+h.Event)
		return
	}
	// Without an event tag, only the sub-fields actually carried update.
	if h.Receiving != "" {
		rec.HandoffReceiving = h.Receiving
	}
	if h.Transferring != "" {
		rec.HandoffTransferring = h.Transferring
	}
	if h.Accepting != "" {
		rec.HandoffAccepting = h.Accepting
	}
}

// controllingUnit renders the controlling facility/sector in the same
// format the decoder uses for handoff units.
func controllingUnit(rec *FlightRecord) string {
	if rec.ControllingSector == "" {
		return rec.ControllingFacility
	}
	return rec.ControllingFacility + "/" + rec.ControllingSector
}

var sourceNames = map[string]string{
	SourceFlightPlan:     "Flight plan",
	SourceAssumedHandoff: "Assumed handoff",
	SourceUpdate:         "Update",
	SourceInterim:        "Interim altitude",
	SourceLocalHandoff:   "Local handoff",
	SourceHeartbeat:      "Heartbeat",
	SourceTrack:          "Track",
}

func buildSummary(p *decode.FlightPartial, notes []string) string {
	base := sourceNames[p.Source]
	if base == "" {
		base = p.Source + " message"
	}
	if len(notes) == 0 {
		return base
	}
	return base + ": " + strings.Join(notes, "; ")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ApplySurface merges one SMES partial. A full report is authoritative for
// the identity fields; a partial report only sets what it carries.
func (s *Store) ApplySurface(p *decode.SurfacePartial) *SurfaceTrack {
	now := time.Now().UTC()
	key := SurfaceKey{Airport: p.Airport, TrackID: p.TrackID}

	s.smu.Lock()
	defer s.smu.Unlock()

	t := s.surface[key]
	if t == nil {
		t = &SurfaceTrack{Airport: p.Airport, TrackID: p.TrackID, FirstSeen: now}
		s.surface[key] = t
	}

	if p.Full {
		t.Callsign = p.Callsign
		t.Squawk = p.Squawk
		t.AircraftType = p.AircraftType
		t.TargetType = p.TargetType
	} else {
		if p.Callsign != "" {
			t.Callsign = p.Callsign
		}
		if p.Squawk != "" {
			t.Squawk = p.Squawk
		}
		if p.AircraftType != "" {
			t.AircraftType = p.AircraftType
		}
		if p.TargetType != "" {
			t.TargetType = p.TargetType
		}
	}

	if p.HasPosition {
		t.Lat, t.Lon = p.Lat, p.Lon
	}
	if p.HasAltitude {
		t.Altitude = p.Altitude
	}
	if p.HasSpeed {
		t.Speed = p.Speed
	}
	if p.HasHeading {
		t.Heading = p.Heading
	}
	if p.EramGUFI != "" {
		t.EramGUFI = p.EramGUFI
	}
	t.LastSeen = now

	s.DirtySurface.Mark(key)
	return t
}

// ApplyTerminal merges one TAIS partial into its STARS track.
func (s *Store) ApplyTerminal(p *decode.TerminalPartial) *TerminalTrack {
	now := time.Now().UTC()
	key := TerminalKey{Facility: p.Facility, TrackNum: p.TrackNum}

	s.tmu.Lock()
	defer s.tmu.Unlock()

	t := s.terminal[key]
	if t == nil {
		t = &TerminalTrack{
			Facility:  p.Facility,
			TrackNum:  p.TrackNum,
			GUID:      newTerminalGUID(),
			FirstSeen: now,
		}
		s.terminal[key] = t
	}

	if p.Callsign != "" {
		t.Callsign = p.Callsign
	}
	if p.AircraftType != "" {
		t.AircraftType = p.AircraftType
	}
	if p.Equipment != "" {
		t.Equipment = p.Equipment
	}
	if p.Wake != "" {
		t.Wake = p.Wake
	}
	if p.FlightRules != "" {
		t.FlightRules = p.FlightRules
	}
	if p.Origin != "" {
		t.Origin = p.Origin
	}
	if p.Destination != "" {
		t.Destination = p.Destination
	}
	if p.EntryFix != "" {
		t.EntryFix = p.EntryFix
	}
	if p.ExitFix != "" {
		t.ExitFix = p.ExitFix
	}
	if p.AssignedBeacon != "" {
		t.AssignedSquawk = p.AssignedBeacon
	}
	if p.ReportedBeacon != "" {
		t.ReportedSquawk = p.ReportedBeacon
	}
	if p.RequestedAlt != 0 {
		t.RequestedAlt = p.RequestedAlt
	}
	if p.Runway != "" {
		t.Runway = p.Runway
	}
	// A present scratchpad element is authoritative even when empty: the
	// sentinel strings decode to a present clear.
	if p.HasScratch1 {
		t.ScratchPad1 = p.ScratchPad1
	}
	if p.HasScratch2 {
		t.ScratchPad2 = p.ScratchPad2
	}
	if p.Owner != "" {
		t.Owner = p.Owner
	}
	if p.PendingHandoff != "" {
		t.PendingHandoff = p.PendingHandoff
	}

	if p.HasPosition {
		t.Lat, t.Lon = p.Lat, p.Lon
	}
	if p.HasAltitude {
		t.Altitude = p.Altitude
	}
	if p.HasVelocity {
		t.GroundSpeed = p.GroundSpeed
		t.Track = p.Track
	}
	if p.VerticalRate != 0 {
		t.VerticalRate = p.VerticalRate
	}
	if p.ModeS != "" {
		t.ModeS = p.ModeS
	}
	t.Frozen = p.Frozen
	t.Pseudo = p.Pseudo
	t.LastSeen = now

	s.DirtyTerminal.Mark(key)
	return t
}

// ApplyTower appends one TDES event to its aircraft history.
func (s *Store) ApplyTower(p *decode.TowerPartial) *TowerAircraft {
	now := time.Now().UTC()
	key := TowerKey{Airport: p.Airport, AircraftID: p.AircraftID}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	t := s.tower[key]
	if t == nil {
		t = &TowerAircraft{Airport: p.Airport, AircraftID: p.AircraftID}
		s.tower[key] = t
	}

	ev := TowerEvent{
		Kind:          string(p.Kind),
		Time:          p.Time,
		Beacon:        p.Beacon,
		AircraftType:  p.AircraftType,
		ComputerID:    p.ComputerID,
		GUFI:          p.GUFI,
		Destination:   p.Destination,
		Header:        p.Header,
		Body:          p.Body,
		Gate:          p.Gate,
		Runway:        p.Runway,
		ClearanceTime: p.ClearanceTime,
		TaxiTime:      p.TaxiTime,
		TakeoffTime:   p.TakeoffTime,
	}
	if ev.Time.IsZero() {
		ev.Time = now
	}
	t.Events = append(t.Events, ev)
	t.LastSeen = now

	s.DirtyTower.Mark(key)
	return t
}
