package adsb

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"swimfeed/internal/decode"
	"swimfeed/internal/geo"
	"swimfeed/internal/state"
)

const (
	// DefaultRefresh is the regional snapshot interval.
	DefaultRefresh = 60 * time.Second

	// maxHexFallbacks caps per-hex lookups in one cycle; everything else
	// waits for the next snapshot.
	maxHexFallbacks = 50

	hexCacheSize = 8192
	hexCacheTTL  = 10 * time.Minute

	matchRadiusNM  = 5.0
	matchAltDiffFt = 1000
)

// Enricher fills in callsigns and aircraft types on terminal tracks that
// the feed only identifies by Mode-S address or beacon code. Matches are
// published as synthesized partial updates through the same merge engine
// the feed uses.
type Enricher struct {
	client  *Client
	store   *state.Store
	regions []Region
	refresh time.Duration
	log     *slog.Logger

	// hexCache remembers recent per-hex answers (including misses, as nil)
	// so the fallback path doesn't hammer the aggregator.
	hexCache *expirable.LRU[string, *Aircraft]
}

// NewEnricher wires the snapshot loop to the store.
func NewEnricher(client *Client, store *state.Store, regions []Region, refresh time.Duration, log *slog.Logger) *Enricher {
	if len(regions) == 0 {
		regions = DefaultRegions
	}
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return &Enricher{
		client:   client,
		store:    store,
		regions:  regions,
		refresh:  refresh,
		log:      log,
		hexCache: expirable.NewLRU[string, *Aircraft](hexCacheSize, nil, hexCacheTTL),
	}
}

// Run fetches regional snapshots and works the pending set until the
// context is cancelled.
func (e *Enricher) Run(ctx context.Context) error {
	t := time.NewTicker(e.refresh)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			snap := fetchSnapshot(ctx, e.client, e.regions, e.log)
			n := e.enrichPending(ctx, snap)
			e.log.Debug("adsb: enrichment cycle", "snapshot", snap.Len(), "matched", n)
		}
	}
}

// pending reports whether a track still needs identity enrichment.
func pending(t *state.TerminalTrack) bool {
	if t.HasCallsign() || t.Frozen || t.Pseudo {
		return false
	}
	return t.ModeS != "" || t.ReportedSquawk != ""
}

// enrichPending walks the pending set against one snapshot and returns the
// match count.
func (e *Enricher) enrichPending(ctx context.Context, snap *Snapshot) int {
	// Cross-populate the TTL cache from the snapshot while walking it.
	for hex, a := range snap.byHex {
		e.hexCache.Add(hex, a)
	}

	matched, fallbacks := 0, 0
	for _, t := range e.store.TerminalSnapshots("") {
		if !pending(&t) {
			continue
		}

		var a *Aircraft
		switch {
		case t.ModeS != "":
			a = snap.ByHex(t.ModeS)
			if a == nil {
				a, fallbacks = e.hexFallback(ctx, t.ModeS, fallbacks)
			}
		case t.ReportedSquawk != "":
			a = snap.MatchSquawk(t.ReportedSquawk,
				geo.Point{Lat: t.Lat, Lon: t.Lon}, t.Altitude,
				matchRadiusNM, matchAltDiffFt)
		}
		if a == nil || a.Callsign() == "" {
			continue
		}
		if e.apply(&t, a) {
			matched++
		}
	}
	return matched
}

// hexFallback does a capped, cache-gated per-hex lookup for an address no
// region covered. The cache key is lowercased so a feed-spelled address and
// its aggregator spelling share one slot.
func (e *Enricher) hexFallback(ctx context.Context, hex string, used int) (*Aircraft, int) {
	hex = strings.ToLower(hex)
	if a, ok := e.hexCache.Get(hex); ok {
		return a, used
	}
	if used >= maxHexFallbacks {
		return nil, used
	}
	a, err := e.client.ByHex(ctx, hex)
	if err != nil {
		e.log.Warn("adsb: hex lookup failed", "hex", hex, "error", err)
		return nil, used + 1
	}
	e.hexCache.Add(hex, a) // a miss is cached too
	return a, used + 1
}

// apply publishes the synthesized identity update for one match. It
// reports whether anything was published.
func (e *Enricher) apply(t *state.TerminalTrack, a *Aircraft) bool {
	callsign := a.Callsign()
	if e.store.TerminalCallsignInUse(t.Facility, callsign) {
		// The feed may carry the same flight on another track already;
		// duplicating the callsign makes the scope ambiguous.
		return false
	}

	key := state.TerminalKey{Facility: t.Facility, TrackNum: t.TrackNum}
	p := &decode.TerminalPartial{Facility: t.Facility, TrackNum: t.TrackNum}

	if t.ModeS != "" {
		// True Mode-S target: callsign on line 1, beacon on line 3.
		p.Callsign = callsign
		p.ScratchPad2 = a.Squawk
		p.HasScratch2 = a.Squawk != ""
	} else if mk, ok := e.store.TerminalByModeS(t.Facility, a.Hex); ok && mk != key {
		// The matched airframe is already tracked under its Mode-S key in
		// this facility; the identity belongs there.
		p.Facility, p.TrackNum = mk.Facility, mk.TrackNum
		p.Callsign = callsign
		p.ScratchPad2 = a.Squawk
		p.HasScratch2 = a.Squawk != ""
	} else {
		// Uncorrelated beacon-only target: callsign goes to a scratchpad,
		// line 1 keeps showing the beacon. Record the matched beacon as the
		// assigned code so downstream consumers see the correlation.
		p.ScratchPad1 = callsign
		p.HasScratch1 = true
		p.AssignedBeacon = a.Squawk
	}

	if t.AircraftType == "" && a.IcaoType != "" {
		p.AircraftType = a.IcaoType
	}
	// Supplement a missing Mode-C from the match.
	if t.Altitude == 0 && !a.OnGround() && a.Altitude() != 0 {
		p.Altitude = a.Altitude()
		p.HasAltitude = true
	}

	e.store.ApplyTerminal(p)
	return true
}
