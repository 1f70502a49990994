package decode

import (
	"math"
	"strconv"
	"strings"
)

// taisAbsent holds the sentinel strings the STARS feed uses for fields that
// have no value; both decode as absent.
func taisAbsent(s string) bool {
	return s == "" || strings.EqualFold(s, "unavailable") || strings.EqualFold(s, "unassigned")
}

// DecodeTerminal parses a TAIS TATrackAndFlightPlan payload. The facility
// code comes from the src child; each record child yields one partial.
func DecodeTerminal(payload string) (string, []*TerminalPartial, error) {
	root, err := Parse(payload)
	if err != nil {
		return "", nil, err
	}
	if root.Name != "TATrackAndFlightPlan" {
		return "", nil, ErrUnexpectedRoot
	}

	facility := root.ChildText("src")

	var out []*TerminalPartial
	for _, rec := range root.ChildN("record") {
		if p := decodeTerminalRecord(rec, facility); p != nil {
			out = append(out, p)
		}
	}
	return facility, out, nil
}

func decodeTerminalRecord(rec *Node, facility string) *TerminalPartial {
	tr := rec.Child("track")
	if tr == nil {
		return nil
	}
	num, err := strconv.Atoi(tr.ChildText("trackNum"))
	if err != nil {
		return nil
	}

	p := &TerminalPartial{Facility: facility, TrackNum: num}

	if s := tr.ChildText("reportedBeaconCode"); !taisAbsent(s) {
		p.ReportedBeacon = s
	}
	if s := tr.ChildText("reportedAltitude"); !taisAbsent(s) {
		if v, err := strconv.Atoi(s); err == nil {
			p.Altitude, p.HasAltitude = v, true
		}
	}
	if s := tr.ChildText("vVert"); !taisAbsent(s) {
		if v, err := strconv.Atoi(s); err == nil {
			p.VerticalRate = v
		}
	}
	p.Frozen = tr.ChildText("frozen") == "1" || strings.EqualFold(tr.ChildText("frozen"), "true")
	p.Pseudo = tr.ChildText("pseudo") == "1" || strings.EqualFold(tr.ChildText("pseudo"), "true")

	if s := strings.ToUpper(tr.ChildText("acAddress")); !taisAbsent(s) && s != "000000" {
		p.ModeS = s
	}

	lat, okLat := floatChild(tr, "lat")
	lon, okLon := floatChild(tr, "lon")
	if okLat && okLon {
		p.Lat, p.Lon, p.HasPosition = lat, lon, true
	}

	// Ground speed and track are derived from the velocity components; the
	// feed reports vx/vy in knots.
	vx, okX := floatChild(tr, "vx")
	vy, okY := floatChild(tr, "vy")
	if okX && okY {
		p.GroundSpeed = int(math.Round(math.Hypot(vx, vy)))
		deg := math.Atan2(vx, vy) * 180 / math.Pi
		if deg < 0 {
			deg += 360
		}
		p.Track = deg
		p.HasVelocity = true
	}

	if fp := rec.Child("flightPlan"); fp != nil {
		get := func(name string) string {
			if s := fp.ChildText(name); !taisAbsent(s) {
				return s
			}
			return ""
		}
		p.Callsign = get("acid")
		p.Equipment = get("eqptSuffix")
		p.Wake = get("category")
		p.FlightRules = get("flightRules")
		p.EntryFix = get("entryFix")
		p.ExitFix = get("exitFix")
		p.AssignedBeacon = get("assignedBeaconCode")
		if s := get("requestedAltitude"); s != "" {
			if v, err := strconv.Atoi(s); err == nil {
				p.RequestedAlt = v
			}
		}
		p.Runway = get("runway")
		if sp := fp.Child("scratchPad1"); sp != nil {
			p.HasScratch1 = true
			if s := sp.TrimText(); !taisAbsent(s) {
				p.ScratchPad1 = s
			}
		}
		if sp := fp.Child("scratchPad2"); sp != nil {
			p.HasScratch2 = true
			if s := sp.TrimText(); !taisAbsent(s) {
				p.ScratchPad2 = s
			}
		}
		p.Owner = get("cps")
		p.PendingHandoff = get("pendingHandoff")
		p.AircraftType = get("acType")
	}

	if ed := rec.Child("enhancedData"); ed != nil {
		if s := ed.ChildText("departureAirport"); !taisAbsent(s) {
			p.Origin = s
		}
		if s := ed.ChildText("destinationAirport"); !taisAbsent(s) {
			p.Destination = s
		}
	}

	return p
}
