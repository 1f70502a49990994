package fanout

import (
	"swimfeed/internal/state"
)

// Scope-protocol messages. Downstream scopes key everything off the GUID,
// which stays stable for the life of the track even as the facility
// recycles track numbers.

// ScopePosition is one track position report.
type ScopePosition struct {
	Kind         string  `msgpack:"kind" json:"kind"` // "position"
	GUID         string  `msgpack:"guid" json:"guid"`
	Lat          float64 `msgpack:"lat" json:"lat"`
	Lon          float64 `msgpack:"lon" json:"lon"`
	Altitude     int     `msgpack:"altitude" json:"altitude"`
	GroundSpeed  int     `msgpack:"groundSpeed" json:"groundSpeed"`
	Track        float64 `msgpack:"track" json:"track"`
	VerticalRate int     `msgpack:"verticalRate" json:"verticalRate"`
	Squawk       string  `msgpack:"squawk,omitempty" json:"squawk,omitempty"`
}

// ScopeFlightPlan is one track identity report.
type ScopeFlightPlan struct {
	Kind         string `msgpack:"kind" json:"kind"` // "flightplan"
	GUID         string `msgpack:"guid" json:"guid"`
	Callsign     string `msgpack:"callsign,omitempty" json:"callsign,omitempty"`
	AircraftType string `msgpack:"acType,omitempty" json:"acType,omitempty"`
	FlightRules  string `msgpack:"flightRules,omitempty" json:"flightRules,omitempty"`
	Origin       string `msgpack:"origin,omitempty" json:"origin,omitempty"`
	Destination  string `msgpack:"destination,omitempty" json:"destination,omitempty"`
	Squawk       string `msgpack:"squawk,omitempty" json:"squawk,omitempty"`
	ScratchPad1  string `msgpack:"scratchPad1,omitempty" json:"scratchPad1,omitempty"`
	ScratchPad2  string `msgpack:"scratchPad2,omitempty" json:"scratchPad2,omitempty"`
	Owner        string `msgpack:"owner,omitempty" json:"owner,omitempty"`
}

// ScopeDelete tells the scope to drop a track.
type ScopeDelete struct {
	Kind string `msgpack:"kind" json:"kind"` // "delete"
	GUID string `msgpack:"guid" json:"guid"`
}

// scopeUpdates maps one terminal batch onto position and flight-plan
// messages, one pair per track.
func scopeUpdates(tracks []state.TerminalTrack) []any {
	msgs := make([]any, 0, len(tracks)*2)
	for i := range tracks {
		t := &tracks[i]
		if t.Lat != 0 || t.Lon != 0 {
			msgs = append(msgs, positionMsg(t))
		}
		if t.HasCallsign() || t.Origin != "" || t.Destination != "" {
			msgs = append(msgs, flightPlanMsg(t))
		}
	}
	return msgs
}

// scopeSnapshot is the connect-time form: the same messages as an update
// stream, covering every live track.
func scopeSnapshot(tracks []state.TerminalTrack) []any {
	return scopeUpdates(tracks)
}

// scopeDeletes maps purged tracks onto delete messages.
func scopeDeletes(tracks []state.TerminalTrack) []ScopeDelete {
	out := make([]ScopeDelete, len(tracks))
	for i := range tracks {
		out[i] = ScopeDelete{Kind: "delete", GUID: tracks[i].GUID}
	}
	return out
}

func positionMsg(t *state.TerminalTrack) ScopePosition {
	return ScopePosition{
		Kind:         "position",
		GUID:         t.GUID,
		Lat:          t.Lat,
		Lon:          t.Lon,
		Altitude:     t.Altitude,
		GroundSpeed:  t.GroundSpeed,
		Track:        t.Track,
		VerticalRate: t.VerticalRate,
		Squawk:       t.ReportedSquawk,
	}
}

func flightPlanMsg(t *state.TerminalTrack) ScopeFlightPlan {
	return ScopeFlightPlan{
		Kind:         "flightplan",
		GUID:         t.GUID,
		Callsign:     t.Callsign,
		AircraftType: t.AircraftType,
		FlightRules:  t.FlightRules,
		Origin:       t.Origin,
		Destination:  t.Destination,
		Squawk:       t.AssignedSquawk,
		ScratchPad1:  t.ScratchPad1,
		ScratchPad2:  t.ScratchPad2,
		Owner:        t.Owner,
	}
}
