package adsb

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"swimfeed/internal/decode"
	"swimfeed/internal/geo"
	"swimfeed/internal/state"
)

// Coverage is one military-injection area tied to a terminal facility.
type Coverage struct {
	Facility string  `json:"facility"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusNM float64 `json:"radiusNm"`
}

// DefaultCoverageRadiusNM applies when a coverage area has no radius.
const DefaultCoverageRadiusNM = 150

// injectedTrackBase keeps synthesized track numbers clear of the STARS
// track-number space (12 bits).
const injectedTrackBase = 0x40000

// Injector publishes military aircraft the aggregator sees inside each
// coverage area as synthesized terminal tracks, so they show up alongside
// the feed's own traffic.
type Injector struct {
	client   *Client
	store    *state.Store
	areas    []Coverage
	interval time.Duration
	log      *slog.Logger
}

// NewInjector wires the military loop to the store.
func NewInjector(client *Client, store *state.Store, areas []Coverage, interval time.Duration, log *slog.Logger) *Injector {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	for i := range areas {
		if areas[i].RadiusNM <= 0 {
			areas[i].RadiusNM = DefaultCoverageRadiusNM
		}
	}
	return &Injector{client: client, store: store, areas: areas, interval: interval, log: log}
}

// Run polls each coverage area until the context is cancelled. One
// aggregator response per area per tick; the rate-limited client spaces
// the requests out.
func (j *Injector) Run(ctx context.Context) error {
	if len(j.areas) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	t := time.NewTicker(j.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			for _, area := range j.areas {
				j.pollArea(ctx, area)
			}
		}
	}
}

func (j *Injector) pollArea(ctx context.Context, area Coverage) {
	acs, err := j.client.Within(ctx, area.Lat, area.Lon, area.RadiusNM)
	if err != nil {
		j.log.Warn("adsb: military poll failed", "facility", area.Facility, "error", err)
		return
	}
	injected := 0
	for i := range acs {
		a := &acs[i]
		if !a.Military() || a.Hex == "" {
			continue
		}
		if _, tracked := j.store.TerminalByModeS(area.Facility, a.Hex); tracked {
			continue
		}
		j.inject(area.Facility, a)
		injected++
	}
	if injected > 0 {
		j.log.Debug("adsb: military injected", "facility", area.Facility, "count", injected)
	}
}

// inject publishes position and identity partials for one military target.
// The synthesized track number is derived from the Mode-S address, outside
// the real track-number space.
func (j *Injector) inject(facility string, a *Aircraft) {
	tn := injectedTrackBase
	if v, err := strconv.ParseInt(a.Hex, 16, 64); err == nil {
		tn += int(v & 0x3FFFF)
	}

	callsign := a.Callsign()
	if callsign == "" {
		callsign = a.Registration
	}

	p := &decode.TerminalPartial{
		Facility:     facility,
		TrackNum:     tn,
		Callsign:     callsign,
		AircraftType: a.IcaoType,
		ModeS:        a.Hex,
		Pseudo:       true,
	}
	if a.Lat != 0 || a.Lon != 0 {
		p.Lat, p.Lon = a.Lat, a.Lon
		p.HasPosition = true
	}
	if !a.OnGround() && a.Altitude() != 0 {
		p.Altitude = a.Altitude()
		p.HasAltitude = true
	}
	if a.GroundSpeed != 0 {
		p.GroundSpeed = int(a.GroundSpeed)
		p.Track = a.Track
		p.HasVelocity = true
	}
	if a.Squawk != "" {
		p.ReportedBeacon = a.Squawk
	}
	j.store.ApplyTerminal(p)
}

// InArea reports whether a point falls inside a coverage circle.
func (c Coverage) InArea(p geo.Point) bool {
	return geo.DistanceNM(geo.Point{Lat: c.Lat, Lon: c.Lon}, p) <= c.RadiusNM
}
