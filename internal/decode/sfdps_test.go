package decode

import (
	"testing"
	"time"
)

const flightMsg = `<ns5:MessageCollection xmlns:ns5="urn:us:gov:dot:faa:atm:tfm:flightdata">
 <message>
  <flight centre="ZBW" source="FP" timestamp="2025-03-01T12:00:00Z" flightType="SCHEDULED">
   <gufi>us.fdps.2025-03-01.000123</gufi>
   <flightIdentification aircraftIdentification="JBU123" computerId="456"/>
   <flightStatus fdpsFlightStatus="ACTIVE"/>
   <operator><operatingOrganization><organization><name>JETBLUE AIRWAYS</name></organization></operatingOrganization></operator>
   <originator aftnAddress="KJBUXDDF"/>
   <departure departurePoint="KBOS" actualTimeOfDeparture="2025-03-01T11:45:00Z"/>
   <arrival arrivalPoint="KJFK" estimatedTimeOfArrival="2025-03-01T12:45:00Z">
    <arrivalPointAlternate>KLGA</arrivalPointAlternate>
   </arrival>
   <assignedAltitude><simple>33000</simple></assignedAltitude>
   <interimAltitude>25000</interimAltitude>
   <controllingUnit unitIdentifier="ZBW" sectorIdentifier="46"/>
   <flightPlan remarks="NO RNAV ARRIVALS"/>
   <enRoute>
    <position coastIndicator="COASTING">
     <pos>42.1234 -71.5678</pos>
     <altitude>32975</altitude>
     <actualSpeed><surveillance value="442"/></actualSpeed>
     <trackVelocity><x>380.0</x><y>-221.5</y></trackVelocity>
     <targetPosition invalid="true"><pos>41.0 -70.0</pos></targetPosition>
     <targetAltitude>33000</targetAltitude>
    </position>
    <beaconCodeAssignment><currentBeaconCode>5274</currentBeaconCode></beaconCodeAssignment>
    <cleared clearanceHeading="270" clearanceText="DIRECT PARCH"/>
    <pointout>
     <originatingUnit unitIdentifier="ZBW" sectorIdentifier="46"/>
     <receivingUnit unitIdentifier="ZNY" sectorIdentifier="10"/>
    </pointout>
   </enRoute>
   <handoff event="INITIATION">
    <receivingUnit unitIdentifier="ZNY" sectorIdentifier="10"/>
    <transferringUnit unitIdentifier="ZBW" sectorIdentifier="46"/>
   </handoff>
   <aircraftDescription icaoModelIdentifier="A320" registration="N527JB" wakeTurbulence="MEDIUM" aircraftAddress="A6F2C1" equipmentQualifier="L">
    <communication communicationCode="J4"><code>E2</code><code>E3</code></communication>
    <navigation performanceBasedCode="A1B1"><code>D1</code></navigation>
    <surveillance><code>B1</code></surveillance>
   </aircraftDescription>
   <agreed>
    <route nasRouteText="KBOS LOGAN4 SSOXS V1 BUZRD PARCH3 KJFK" initialFlightRules="IFR" nasadaptedArrivalRoute="PARCH3">
     <estimatedElapsedTime elapsedTime="PT1H5M" location="CZUL"/>
    </route>
   </agreed>
   <supplementalData>
    <nameValue name="FDPS_GUFI" value="KF00123456"/>
    <nameValue name="TMI_IDS" value="GDP_JFK"/>
    <nameValue name="4TH_ADAPTED_FIELD" value="J80"/>
   </supplementalData>
  </flight>
 </message>
</ns5:MessageCollection>`

func TestDecodeEnRoute(t *testing.T) {
	flights, dropped, err := DecodeEnRoute(flightMsg)
	if err != nil {
		t.Fatalf("DecodeEnRoute: %v", err)
	}
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if len(flights) != 1 {
		t.Fatalf("got %d flights, want 1", len(flights))
	}
	p := flights[0]

	if p.GUFI != "us.fdps.2025-03-01.000123" {
		t.Errorf("GUFI = %q", p.GUFI)
	}
	if p.Source != "FP" || p.Centre != "ZBW" || p.FlightType != "SCHEDULED" {
		t.Errorf("attrs = %q %q %q", p.Source, p.Centre, p.FlightType)
	}
	if want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC); !p.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v", p.Timestamp)
	}
	if p.Callsign != "JBU123" {
		t.Errorf("Callsign = %q", p.Callsign)
	}
	if p.ComputerIDs["ZBW"] != "456" {
		t.Errorf("ComputerIDs = %v", p.ComputerIDs)
	}
	if p.Status != "ACTIVE" {
		t.Errorf("Status = %q", p.Status)
	}
	if p.Operator != "JETBLUE AIRWAYS" {
		t.Errorf("Operator = %q", p.Operator)
	}
	if p.AftnAddress != "KJBUXDDF" {
		t.Errorf("AftnAddress = %q", p.AftnAddress)
	}
	if p.Origin != "KBOS" || p.Destination != "KJFK" {
		t.Errorf("Origin/Destination = %q/%q", p.Origin, p.Destination)
	}
	if len(p.Alternates) != 1 || p.Alternates[0] != "KLGA" {
		t.Errorf("Alternates = %v", p.Alternates)
	}

	if p.Assigned == nil || p.Assigned.Kind != AltSimple || p.Assigned.Simple != 33000 {
		t.Errorf("Assigned = %+v", p.Assigned)
	}
	if v, ok := p.Interim.Get(); !ok || v != 25000 {
		t.Errorf("Interim = %+v", p.Interim)
	}
	if p.ControllingFacility != "ZBW" || p.ControllingSector != "46" {
		t.Errorf("controlling = %q/%q", p.ControllingFacility, p.ControllingSector)
	}
	if p.Remarks != "NO RNAV ARRIVALS" {
		t.Errorf("Remarks = %q", p.Remarks)
	}

	pos := p.Position
	if pos == nil || !pos.HasPosition {
		t.Fatalf("Position = %+v", pos)
	}
	if pos.Lat != 42.1234 || pos.Lon != -71.5678 {
		t.Errorf("pos = %f %f", pos.Lat, pos.Lon)
	}
	if !pos.HasAltitude || pos.Altitude != 32975 {
		t.Errorf("altitude = %d", pos.Altitude)
	}
	if !pos.HasSpeed || pos.Speed != 442 {
		t.Errorf("speed = %d", pos.Speed)
	}
	if !pos.HasVelocity || pos.VX != 380.0 || pos.VY != -221.5 {
		t.Errorf("velocity = %f %f", pos.VX, pos.VY)
	}
	if !pos.Coast {
		t.Error("Coast = false, want true")
	}
	// targetPosition carried invalid="true" and must be skipped; the
	// target altitude had no such marker.
	if pos.HasTarget {
		t.Error("HasTarget = true, want skipped")
	}
	if !pos.HasTargetAltitude || pos.TargetAltitude != 33000 {
		t.Errorf("target altitude = %d", pos.TargetAltitude)
	}

	// The dedicated assignment element sets both codes.
	if p.AssignedBeacon != "5274" || p.CurrentBeacon != "5274" {
		t.Errorf("beacons = %q/%q", p.AssignedBeacon, p.CurrentBeacon)
	}

	if !p.HasCleared || p.Cleared == nil {
		t.Fatal("cleared element missing")
	}
	if p.Cleared.Heading != "270" || p.Cleared.Speed != "" || p.Cleared.Text != "DIRECT PARCH" {
		t.Errorf("Cleared = %+v", p.Cleared)
	}

	if p.Pointout == nil || p.Pointout.Originating != "ZBW/46" || p.Pointout.Receiving != "ZNY/10" {
		t.Errorf("Pointout = %+v", p.Pointout)
	}

	h := p.Handoff
	if h == nil || !h.HasEvent || h.Event != "INITIATION" {
		t.Fatalf("Handoff = %+v", h)
	}
	if h.Receiving != "ZNY/10" || h.Transferring != "ZBW/46" || h.Accepting != "" {
		t.Errorf("Handoff units = %+v", h)
	}

	if p.AircraftType != "A320" || p.Registration != "N527JB" || p.Wake != "MEDIUM" {
		t.Errorf("aircraft = %q %q %q", p.AircraftType, p.Registration, p.Wake)
	}
	if p.ModeS != "A6F2C1" || p.Equipment != "L" {
		t.Errorf("modeS/equip = %q/%q", p.ModeS, p.Equipment)
	}
	if p.CommCodes != "E2 E3 J4" {
		t.Errorf("CommCodes = %q", p.CommCodes)
	}
	if p.NavCodes != "D1 A1B1" {
		t.Errorf("NavCodes = %q", p.NavCodes)
	}
	if p.SurvCodes != "B1" {
		t.Errorf("SurvCodes = %q", p.SurvCodes)
	}

	if p.RouteText != "KBOS LOGAN4 SSOXS V1 BUZRD PARCH3 KJFK" {
		t.Errorf("RouteText = %q", p.RouteText)
	}
	if p.FlightRules != "IFR" || p.ArrivalProcedure != "PARCH3" {
		t.Errorf("rules/arrival = %q/%q", p.FlightRules, p.ArrivalProcedure)
	}
	if len(p.ElapsedTimes) != 1 || p.ElapsedTimes[0].FIR != "CZUL" || p.ElapsedTimes[0].Elapsed != 65*time.Minute {
		t.Errorf("ElapsedTimes = %+v", p.ElapsedTimes)
	}

	if p.Supplemental["TMI_IDS"] != "GDP_JFK" || p.Supplemental["4TH_ADAPTED_FIELD"] != "J80" {
		t.Errorf("Supplemental = %v", p.Supplemental)
	}
}

func TestDecodeEnRouteBlockAltitude(t *testing.T) {
	payload := `<collection><message><flight source="FP">
	<gufi>g1</gufi>
	<assignedAltitude><block><above>30000</above><below>32000</below></block></assignedAltitude>
	</flight></message></collection>`

	flights, _, err := DecodeEnRoute(payload)
	if err != nil || len(flights) != 1 {
		t.Fatalf("decode: %v (%d flights)", err, len(flights))
	}
	a := flights[0].Assigned
	if a == nil || a.Kind != AltBlock || a.Floor != 30000 || a.Ceiling != 32000 {
		t.Errorf("Assigned = %+v", a)
	}
}

func TestDecodeEnRouteInterimNil(t *testing.T) {
	payload := `<collection xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><message><flight source="LH">
	<gufi>g2</gufi>
	<interimAltitude xsi:nil="true">23000</interimAltitude>
	</flight></message></collection>`

	flights, _, err := DecodeEnRoute(payload)
	if err != nil || len(flights) != 1 {
		t.Fatalf("decode: %v", err)
	}
	// nil wins even when the element text is parseable.
	if !flights[0].Interim.IsNull() {
		t.Errorf("Interim = %+v, want explicit nil", flights[0].Interim)
	}
}

func TestDecodeEnRouteCurrentBeaconOnly(t *testing.T) {
	payload := `<collection><message><flight source="TH">
	<gufi>g3</gufi>
	<enRoute><currentBeaconCode>1200</currentBeaconCode></enRoute>
	</flight></message></collection>`

	flights, _, err := DecodeEnRoute(payload)
	if err != nil || len(flights) != 1 {
		t.Fatalf("decode: %v", err)
	}
	p := flights[0]
	if p.AssignedBeacon != "" {
		t.Errorf("AssignedBeacon = %q, want empty", p.AssignedBeacon)
	}
	if p.CurrentBeacon != "1200" {
		t.Errorf("CurrentBeacon = %q", p.CurrentBeacon)
	}
}

func TestDecodeEnRouteMissingGufi(t *testing.T) {
	payload := `<collection><message><flight source="FP"><flightIdentification aircraftIdentification="N123"/></flight></message></collection>`
	flights, dropped, err := DecodeEnRoute(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(flights) != 0 || dropped != 1 {
		t.Errorf("flights=%d dropped=%d, want 0/1", len(flights), dropped)
	}
}

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"PT1H5M", 65 * time.Minute},
		{"PT45M", 45 * time.Minute},
		{"P1DT2H", 26 * time.Hour},
		{"PT30S", 30 * time.Second},
		{"bogus", 0},
	}
	for _, c := range cases {
		if got := parseISODuration(c.in); got != c.want {
			t.Errorf("parseISODuration(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
