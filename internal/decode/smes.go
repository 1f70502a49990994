package decode

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnexpectedRoot is returned when a payload's root element is not one the
// decoder handles. Callers count these for telemetry rather than logging
// each one.
var ErrUnexpectedRoot = errors.New("decode: unexpected root element")

// ErrIgnoredRoot marks payloads that are recognized but intentionally
// dropped (SafetyLogicHoldBar, DATISData).
var ErrIgnoredRoot = errors.New("decode: ignored root element")

// DecodeSurface parses an SMES asdexMsg payload into surface-track partial
// updates. A single message can carry several reports. SafetyLogicHoldBar
// messages are dropped without error.
func DecodeSurface(payload string) ([]*SurfacePartial, error) {
	root, err := Parse(payload)
	if err != nil {
		return nil, err
	}
	if root.Name == "SafetyLogicHoldBar" {
		return nil, ErrIgnoredRoot
	}
	if root.Name != "asdexMsg" {
		return nil, ErrUnexpectedRoot
	}

	airport := root.ChildText("airport")

	var out []*SurfacePartial
	for _, child := range root.Children {
		switch child.Name {
		case "positionReport":
			if p := decodePositionReport(child, airport); p != nil {
				out = append(out, p)
			}
		case "adsbReport":
			// adsbReport/report/basicReport; identity comes from the paired
			// positionReport, so these only refresh position and GUFI.
			for _, rep := range child.ChildN("report") {
				if basic := rep.Child("basicReport"); basic != nil {
					if p := decodeBasicReport(basic, airport); p != nil {
						out = append(out, p)
					}
				}
			}
			if basic := child.Child("basicReport"); basic != nil {
				if p := decodeBasicReport(basic, airport); p != nil {
					out = append(out, p)
				}
			}
		}
	}
	return out, nil
}

func decodePositionReport(rep *Node, airport string) *SurfacePartial {
	p := &SurfacePartial{
		Airport: airport,
		TrackID: rep.ChildText("track"),
		Full:    rep.AttrValue("full") == "true",
	}
	if p.TrackID == "" {
		p.TrackID = attrOrChild(rep, "trackId")
	}
	if p.TrackID == "" {
		return nil
	}

	// positionReport uses the long element names for coordinates.
	lat, okLat := floatChild(rep, "latitude")
	lon, okLon := floatChild(rep, "longitude")
	if !okLat || !okLon {
		if pos := rep.Child("position"); pos != nil {
			lat, okLat = floatChild(pos, "latitude")
			lon, okLon = floatChild(pos, "longitude")
		}
	}
	if okLat && okLon {
		p.Lat, p.Lon, p.HasPosition = lat, lon, true
	}

	if alt, ok := intDescendant(rep, "altitude"); ok {
		p.Altitude, p.HasAltitude = alt, true
	}

	if fid := rep.Child("flightId"); fid != nil {
		p.Callsign = fid.ChildText("aircraftId")
		p.Squawk = fid.ChildText("mode3ACode")
	}
	if fi := rep.Child("flightInfo"); fi != nil {
		p.AircraftType = fi.ChildText("acType")
		p.TargetType = fi.ChildText("tgtType")
	}
	if mv := rep.Child("movement"); mv != nil {
		if v, ok := intDescendant(mv, "speed"); ok {
			p.Speed, p.HasSpeed = v, true
		}
		if v, ok := floatChild(mv, "heading"); ok {
			p.Heading, p.HasHeading = v, true
		}
	}
	if ed := rep.Child("enhancedData"); ed != nil {
		p.EramGUFI = ed.ChildText("eramGufi")
	}
	return p
}

func decodeBasicReport(basic *Node, airport string) *SurfacePartial {
	p := &SurfacePartial{
		Airport: airport,
		TrackID: basic.ChildText("track"),
	}
	if p.TrackID == "" {
		p.TrackID = attrOrChild(basic, "trackId")
	}
	if p.TrackID == "" {
		return nil
	}

	// basicReport uses the short coordinate element names.
	lat, okLat := floatChild(basic, "lat")
	lon, okLon := floatChild(basic, "lon")
	if okLat && okLon {
		p.Lat, p.Lon, p.HasPosition = lat, lon, true
	}
	if alt, ok := intDescendant(basic, "altitude"); ok {
		p.Altitude, p.HasAltitude = alt, true
	}
	if ed := basic.Child("enhancedData"); ed != nil {
		p.EramGUFI = ed.ChildText("eramGufi")
	}
	return p
}

func floatChild(n *Node, name string) (float64, bool) {
	c := n.Child(name)
	if c == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(c.TrimText(), 64)
	return v, err == nil
}

// intDescendant finds the first descendant with the given name that parses
// as an integer (the surface feed nests altitude differently per variant).
func intDescendant(n *Node, name string) (int, bool) {
	s := findFirstText(n, name)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return int(f), true
	}
	return 0, false
}
