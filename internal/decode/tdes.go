package decode

import (
	"time"
)

// tdlsTimeLayout is the compact stamp used by datalink clearance messages.
const tdlsTimeLayout = "01022006150405" // MMddyyyyHHmmss

// DecodeTower parses a TDES payload. TDLSCSPMessage and
// TowerDepartureEventMessage are captured; DATISData is recognized and
// dropped; anything else is an unexpected root.
func DecodeTower(payload string) (*TowerPartial, error) {
	root, err := Parse(payload)
	if err != nil {
		return nil, err
	}
	switch root.Name {
	case "TDLSCSPMessage":
		return decodeClearance(root)
	case "TowerDepartureEventMessage":
		return decodeDepartureEvent(root)
	case "DATISData":
		return nil, ErrIgnoredRoot
	default:
		return nil, ErrUnexpectedRoot
	}
}

func decodeClearance(root *Node) (*TowerPartial, error) {
	p := &TowerPartial{
		Kind:       TowerEventClearance,
		Airport:    firstNonEmpty(root.ChildText("airport"), root.ChildText("airportID")),
		AircraftID: firstNonEmpty(root.ChildText("aircraftId"), root.ChildText("acid")),
	}
	if p.AircraftID == "" {
		return nil, ErrNoIdentifier
	}

	if s := firstNonEmpty(root.ChildText("timestamp"), root.ChildText("msgTime")); s != "" {
		if t, err := time.Parse(tdlsTimeLayout, s); err == nil {
			p.Time = t.UTC()
		} else {
			p.Time = parseTime(s)
		}
	}

	p.Beacon = root.ChildText("beaconCode")
	p.AircraftType = root.ChildText("acType")
	p.ComputerID = firstNonEmpty(root.ChildText("computerId"), root.ChildText("cid"))
	p.GUFI = firstNonEmpty(root.ChildText("eramGufi"), root.ChildText("gufi"))
	p.Destination = firstNonEmpty(root.ChildText("destination"), root.ChildText("destAirport"))
	p.Header = root.ChildText("cspHeader")
	p.Body = root.ChildText("cspBody")
	if p.Body == "" {
		p.Body = root.ChildText("clearance")
	}
	return p, nil
}

func decodeDepartureEvent(root *Node) (*TowerPartial, error) {
	p := &TowerPartial{
		Kind:       TowerEventDeparture,
		Airport:    firstNonEmpty(root.ChildText("airport"), root.ChildText("airportID")),
		AircraftID: firstNonEmpty(root.ChildText("aircraftId"), root.ChildText("acid")),
	}
	if p.AircraftID == "" {
		return nil, ErrNoIdentifier
	}

	// Departure events use ISO-8601 times throughout.
	if s := firstNonEmpty(root.ChildText("eventTime"), root.ChildText("timestamp")); s != "" {
		p.Time = parseTime(s)
	}

	p.Beacon = root.ChildText("beaconCode")
	p.AircraftType = root.ChildText("acType")
	p.ComputerID = firstNonEmpty(root.ChildText("computerId"), root.ChildText("cid"))
	p.GUFI = firstNonEmpty(root.ChildText("eramGufi"), root.ChildText("gufi"))
	p.Gate = root.ChildText("gate")

	// Runway is the concatenation of the numeric ID and the sub ID (e.g.
	// "22" + "L" -> "22L").
	p.Runway = root.ChildText("numericRunwayID") + root.ChildText("runwaySubID")

	if s := root.ChildText("clearanceTime"); s != "" {
		p.ClearanceTime = parseTime(s)
	}
	if s := root.ChildText("taxiTime"); s != "" {
		p.TaxiTime = parseTime(s)
	}
	if s := root.ChildText("takeoffTime"); s != "" {
		p.TakeoffTime = parseTime(s)
	}
	return p, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
