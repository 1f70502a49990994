package decode

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNoIdentifier is returned when a flight element carries no GUFI at all.
var ErrNoIdentifier = errors.New("decode: flight without identifier")

// DecodeEnRoute parses an SFDPS flight-collection payload. The root element's
// name varies across SWIM producers, so any root is accepted; each direct
// child that contains a flight sub-element contributes one partial update.
// Children without a usable identifier are skipped and counted by the caller
// via the returned drop count.
func DecodeEnRoute(payload string) ([]*FlightPartial, int, error) {
	root, err := Parse(payload)
	if err != nil {
		return nil, 0, err
	}

	var out []*FlightPartial
	dropped := 0
	for _, child := range root.Children {
		fl := child.Child("flight")
		if fl == nil {
			if child.Name == "flight" {
				fl = child
			} else {
				continue
			}
		}
		p, err := decodeFlight(fl, payload)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, p)
	}

	// Some producers wrap a single flight directly under the root.
	if out == nil && root.Name == "flight" {
		if p, err := decodeFlight(root, payload); err == nil {
			out = append(out, p)
		} else {
			dropped++
		}
	}

	return out, dropped, nil
}

func decodeFlight(fl *Node, raw string) (*FlightPartial, error) {
	p := &FlightPartial{
		Source:     fl.AttrValue("source"),
		Centre:     fl.AttrValue("centre"),
		FlightType: fl.AttrValue("flightType"),
		Raw:        raw,
	}
	if ts := fl.AttrValue("timestamp"); ts != "" {
		p.Timestamp = parseTime(ts)
	}

	p.GUFI = fl.ChildText("gufi")

	if fi := fl.Child("flightIdentification"); fi != nil {
		p.Callsign = attrOrChild(fi, "aircraftIdentification")
		if cid := attrOrChild(fi, "computerId"); cid != "" {
			fac := fi.AttrValue("siteSpecificPlanId")
			if fac == "" {
				fac = p.Centre
			}
			p.ComputerIDs = map[string]string{fac: cid}
		}
	}

	if fs := fl.Child("flightStatus"); fs != nil {
		p.Status = attrOrChild(fs, "fdpsFlightStatus")
	}

	if op := fl.Child("operator"); op != nil {
		p.Operator = findFirstText(op, "name")
	}
	if or := fl.Child("originator"); or != nil {
		p.AftnAddress = attrOrChild(or, "aftnAddress")
	}

	if dep := fl.Child("departure"); dep != nil {
		p.Origin = pointOf(dep, "departurePoint")
		if t := attrOrChild(dep, "actualTimeOfDeparture"); t != "" {
			p.DepartActual = parseTime(t)
		} else if act := dep.Path("departureTimes", "actual"); act != nil {
			p.DepartActual = parseTime(attrOrChild(act, "time"))
		}
	}
	if arr := fl.Child("arrival"); arr != nil {
		p.Destination = pointOf(arr, "arrivalPoint")
		if t := attrOrChild(arr, "estimatedTimeOfArrival"); t != "" {
			p.ArriveEstimate = parseTime(t)
		} else if est := arr.Path("arrivalTimes", "estimated"); est != nil {
			p.ArriveEstimate = parseTime(attrOrChild(est, "time"))
		}
		for _, alt := range arr.ChildN("arrivalPointAlternate") {
			if v := alt.TrimText(); v != "" {
				p.Alternates = append(p.Alternates, v)
			}
		}
		for _, alt := range arr.ChildN("alternate") {
			if v := pointOf(alt, "point"); v != "" {
				p.Alternates = append(p.Alternates, v)
			}
		}
	}

	decodeAssignedAltitude(fl, p)

	if ia := fl.Child("interimAltitude"); ia != nil {
		if ia.IsNil() {
			p.Interim = Null[int]()
		} else if v, ok := altitudeFeet(ia); ok {
			p.Interim = Some(v)
		}
	}

	if cu := fl.Child("controllingUnit"); cu != nil {
		p.ControllingFacility = attrOrChild(cu, "unitIdentifier")
		p.ControllingSector = attrOrChild(cu, "sectorIdentifier")
	}

	if fp := fl.Child("flightPlan"); fp != nil {
		p.Remarks = attrOrChild(fp, "remarks")
	}

	if co := fl.Child("coordination"); co != nil {
		p.CoordinationFix = attrOrChild(co, "coordinationFix")
		if p.CoordinationFix == "" {
			p.CoordinationFix = attrOrChild(co, "fix")
		}
		p.CoordinationTime = attrOrChild(co, "coordinationTime")
		if p.CoordinationTime == "" {
			p.CoordinationTime = attrOrChild(co, "time")
		}
	}

	if rs := fl.Child("requestedAirspeed"); rs != nil {
		if v, ok := firstInt(rs); ok {
			p.RequestedSpeed = v
		}
	}

	if er := fl.Child("enRoute"); er != nil {
		if pos := er.Child("position"); pos != nil {
			p.Position = decodePosition(pos)
		}
		if po := er.Child("pointout"); po != nil {
			p.Pointout = decodePointout(po)
		}
		if cl := er.Child("cleared"); cl != nil {
			p.HasCleared = true
			p.Cleared = decodeCleared(cl)
		}
		decodeBeacon(er, p)
	}
	// Several SFDPS variants put these at the flight level instead.
	if p.Position == nil {
		if pos := fl.Child("position"); pos != nil {
			p.Position = decodePosition(pos)
		}
	}
	if p.Pointout == nil {
		if po := fl.Child("pointout"); po != nil {
			p.Pointout = decodePointout(po)
		}
	}
	if !p.HasCleared {
		if cl := fl.Child("cleared"); cl != nil {
			p.HasCleared = true
			p.Cleared = decodeCleared(cl)
		}
	}
	decodeBeacon(fl, p)

	if ho := fl.Child("handoff"); ho != nil {
		h := &HandoffUpdate{}
		if ev, ok := ho.Attr("event"); ok {
			h.Event = ev
			h.HasEvent = true
		}
		h.Receiving = unitString(ho.Child("receivingUnit"))
		h.Transferring = unitString(ho.Child("transferringUnit"))
		h.Accepting = unitString(ho.Child("acceptingUnit"))
		p.Handoff = h
	}

	decodeAircraftDescription(fl, p)
	decodeAgreedRoute(fl, p)
	decodeSupplemental(fl, p)

	if p.GUFI == "" {
		p.GUFI = p.Supplemental["FDPS_GUFI"]
	}
	if p.GUFI == "" {
		return nil, ErrNoIdentifier
	}
	return p, nil
}

func decodeAssignedAltitude(fl *Node, p *FlightPartial) {
	aa := fl.Child("assignedAltitude")
	if aa == nil {
		return
	}
	switch {
	case aa.Child("simple") != nil:
		if v, ok := altitudeFeet(aa.Child("simple")); ok {
			p.Assigned = &AssignedAltitude{Kind: AltSimple, Simple: v}
		}
	case aa.Child("vfrPlus") != nil:
		if v, ok := altitudeFeet(aa.Child("vfrPlus")); ok {
			p.Assigned = &AssignedAltitude{Kind: AltVFRPlus, VFRPlus: v}
		}
	case aa.Child("vfr") != nil:
		p.Assigned = &AssignedAltitude{Kind: AltVFR}
	case aa.Child("block") != nil:
		b := aa.Child("block")
		floor, okF := altitudeFeet(b.Child("above"))
		ceil, okC := altitudeFeet(b.Child("below"))
		if okF || okC {
			p.Assigned = &AssignedAltitude{Kind: AltBlock, Floor: floor, Ceiling: ceil}
		}
	}
}

func decodePosition(pos *Node) *PositionUpdate {
	u := &PositionUpdate{}

	if lat, lon, ok := parsePos(findFirstText(pos, "pos")); ok {
		u.Lat, u.Lon, u.HasPosition = lat, lon, true
	}
	if alt := pos.Child("altitude"); alt != nil {
		if v, ok := altitudeFeet(alt); ok {
			u.Altitude, u.HasAltitude = v, true
		}
	}
	if spd := pos.Child("actualSpeed"); spd != nil {
		if sv := spd.Child("surveillance"); sv != nil {
			if v, ok := firstInt(sv); ok {
				u.Speed, u.HasSpeed = v, true
			}
		}
	}
	if tv := pos.Child("trackVelocity"); tv != nil {
		x, okX := firstFloat(tv.Child("x"))
		y, okY := firstFloat(tv.Child("y"))
		if okX && okY {
			u.VX, u.VY, u.HasVelocity = x, y, true
		}
	}
	if ci := attrOrChild(pos, "coastIndicator"); ci != "" {
		u.Coast = strings.EqualFold(ci, "COASTING") || strings.EqualFold(ci, "true")
	}
	if tp := pos.Child("targetPosition"); tp != nil && tp.AttrValue("invalid") != "true" {
		if lat, lon, ok := parsePos(findFirstText(tp, "pos")); ok {
			u.TargetLat, u.TargetLon, u.HasTarget = lat, lon, true
		} else if lat, lon, ok := parsePos(tp.TrimText()); ok {
			u.TargetLat, u.TargetLon, u.HasTarget = lat, lon, true
		}
	}
	if ta := pos.Child("targetAltitude"); ta != nil && ta.AttrValue("invalid") != "true" {
		if v, ok := altitudeFeet(ta); ok {
			u.TargetAltitude, u.HasTargetAltitude = v, true
		}
	}
	return u
}

func decodePointout(po *Node) *PointoutUpdate {
	return &PointoutUpdate{
		Originating: unitString(po.Child("originatingUnit")),
		Receiving:   unitString(po.Child("receivingUnit")),
	}
}

func decodeCleared(cl *Node) *ClearedUpdate {
	return &ClearedUpdate{
		Heading: attrOrChild(cl, "clearanceHeading"),
		Speed:   attrOrChild(cl, "clearanceSpeed"),
		Text:    attrOrChild(cl, "clearanceText"),
	}
}

func decodeBeacon(n *Node, p *FlightPartial) {
	if bca := n.Child("beaconCodeAssignment"); bca != nil {
		code := bca.ChildText("currentBeaconCode")
		if code == "" {
			code = attrOrChild(bca, "beaconCode")
		}
		if code == "" {
			code = bca.TrimText()
		}
		if code != "" {
			p.AssignedBeacon = code
			p.CurrentBeacon = code
		}
		return
	}
	if cbc := n.Child("currentBeaconCode"); cbc != nil {
		if code := cbc.TrimText(); code != "" && p.CurrentBeacon == "" {
			p.CurrentBeacon = code
		}
	}
}

func decodeAircraftDescription(fl *Node, p *FlightPartial) {
	ad := fl.Child("aircraftDescription")
	if ad == nil {
		return
	}
	p.AircraftType = attrOrChild(ad, "icaoModelIdentifier")
	p.Registration = attrOrChild(ad, "registration")
	p.Wake = attrOrChild(ad, "wakeTurbulence")
	p.ModeS = strings.ToUpper(attrOrChild(ad, "aircraftAddress"))
	p.Equipment = attrOrChild(ad, "equipmentQualifier")

	if c := ad.Child("communication"); c != nil {
		p.CommCodes = capabilityString(c, "otherDataLinkCapabilities", "selectiveCallingCode")
	}
	if n := ad.Child("navigation"); n != nil {
		p.NavCodes = capabilityString(n, "otherNavigationCapabilities", "performanceBasedCode")
	}
	if s := ad.Child("surveillance"); s != nil {
		p.SurvCodes = capabilityString(s, "otherSurveillanceCapabilities")
	}
}

// capabilityString joins the code children of a CNS capability element with
// any named extra attributes into one display string.
func capabilityString(n *Node, extras ...string) string {
	var parts []string
	for _, c := range n.ChildN("code") {
		if v := c.TrimText(); v != "" {
			parts = append(parts, v)
		}
	}
	if v := n.AttrValue("communicationCode"); v != "" {
		parts = append(parts, v)
	}
	for _, name := range extras {
		if v := attrOrChild(n, name); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func decodeAgreedRoute(fl *Node, p *FlightPartial) {
	agreed := fl.Child("agreed")
	if agreed == nil {
		return
	}
	rt := agreed.Child("route")
	if rt == nil {
		return
	}
	p.RouteText = attrOrChild(rt, "nasRouteText")
	p.FlightRules = attrOrChild(rt, "initialFlightRules")
	p.ArrivalProcedure = attrOrChild(rt, "nasadaptedArrivalRoute")
	for _, eet := range rt.ChildN("estimatedElapsedTime") {
		fir := attrOrChild(eet, "location")
		durText := attrOrChild(eet, "elapsedTime")
		if fir == "" && durText == "" {
			continue
		}
		p.ElapsedTimes = append(p.ElapsedTimes, FIRCrossing{
			FIR:      fir,
			Elapsed:  parseISODuration(durText),
			Estimate: durText,
		})
	}
}

func decodeSupplemental(fl *Node, p *FlightPartial) {
	sd := fl.Child("supplementalData")
	if sd == nil {
		return
	}
	for _, nv := range sd.ChildN("nameValue") {
		name := attrOrChild(nv, "name")
		value := attrOrChild(nv, "value")
		if name == "" {
			continue
		}
		if p.Supplemental == nil {
			p.Supplemental = make(map[string]string)
		}
		p.Supplemental[name] = value
	}
}

// unitString renders an ATC unit as FACILITY/SECTOR, or just the facility
// when no sector is present.
func unitString(n *Node) string {
	if n == nil {
		return ""
	}
	fac := attrOrChild(n, "unitIdentifier")
	sec := attrOrChild(n, "sectorIdentifier")
	switch {
	case fac == "" && sec == "":
		return n.TrimText()
	case sec == "":
		return fac
	default:
		return fac + "/" + sec
	}
}

// attrOrChild returns the attribute value if present, else the text of a
// same-named child. The feeds are inconsistent about which they use.
func attrOrChild(n *Node, name string) string {
	if v, ok := n.Attr(name); ok {
		return strings.TrimSpace(v)
	}
	return n.ChildText(name)
}

// pointOf extracts a named point that may be an attribute, a same-named
// child, or a nested fix/point element.
func pointOf(n *Node, name string) string {
	if v := attrOrChild(n, name); v != "" {
		return v
	}
	if c := n.Child(name); c != nil {
		if v := findFirstText(c, "fix"); v != "" {
			return v
		}
	}
	return n.ChildText("point")
}

// findFirstText depth-first searches for the first descendant with the given
// local name carrying non-empty text.
func findFirstText(n *Node, name string) string {
	if n == nil {
		return ""
	}
	if n.Name == name {
		if v := n.TrimText(); v != "" {
			return v
		}
	}
	for _, c := range n.Children {
		if v := findFirstText(c, name); v != "" {
			return v
		}
	}
	return ""
}

// altitudeFeet reads an altitude from an element's text or value attribute.
func altitudeFeet(n *Node) (int, bool) {
	if n == nil {
		return 0, false
	}
	return firstInt(n)
}

func firstInt(n *Node) (int, bool) {
	if n == nil {
		return 0, false
	}
	s := n.TrimText()
	if s == "" {
		s = n.AttrValue("value")
	}
	if s == "" {
		return 0, false
	}
	// Altitudes occasionally arrive with a decimal part.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

func firstFloat(n *Node) (float64, bool) {
	if n == nil {
		return 0, false
	}
	s := n.TrimText()
	if s == "" {
		s = n.AttrValue("value")
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// parsePos splits a "lat lon" pair.
func parsePos(s string) (float64, float64, bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(fields[0], 64)
	lon, err2 := strconv.ParseFloat(fields[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var isoDurationRe = regexp.MustCompile(`^-?P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// parseISODuration parses the ISO-8601 durations used by
// estimatedElapsedTime (PT1H23M and friends). Unparseable input yields zero.
func parseISODuration(s string) time.Duration {
	m := isoDurationRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	var d time.Duration
	if m[1] != "" {
		n, _ := strconv.Atoi(m[1])
		d += time.Duration(n) * 24 * time.Hour
	}
	if m[2] != "" {
		n, _ := strconv.Atoi(m[2])
		d += time.Duration(n) * time.Hour
	}
	if m[3] != "" {
		n, _ := strconv.Atoi(m[3])
		d += time.Duration(n) * time.Minute
	}
	if m[4] != "" {
		f, _ := strconv.ParseFloat(m[4], 64)
		d += time.Duration(f * float64(time.Second))
	}
	if strings.HasPrefix(strings.TrimSpace(s), "-") {
		d = -d
	}
	return d
}
