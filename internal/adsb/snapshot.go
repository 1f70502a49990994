package adsb

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"swimfeed/internal/geo"
)

// Region is one snapshot query circle.
type Region struct {
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusNM float64 `json:"radiusNm"`
}

// DefaultRegions covers the contiguous US in five 250 NM circles.
var DefaultRegions = []Region{
	{Name: "northeast", Lat: 41.3, Lon: -74.5, RadiusNM: 250},
	{Name: "southeast", Lat: 33.6, Lon: -84.4, RadiusNM: 250},
	{Name: "midwest", Lat: 41.9, Lon: -87.9, RadiusNM: 250},
	{Name: "south-central", Lat: 32.9, Lon: -97.0, RadiusNM: 250},
	{Name: "west", Lat: 36.6, Lon: -116.0, RadiusNM: 250},
}

// Snapshot is one merged regional fetch, indexed for the two lookups the
// enricher does.
type Snapshot struct {
	Taken    time.Time
	byHex    map[string]*Aircraft
	bySquawk map[string][]*Aircraft
}

// ByHex returns the snapshot record for a Mode-S address.
func (s *Snapshot) ByHex(hex string) *Aircraft {
	if s == nil {
		return nil
	}
	return s.byHex[strings.ToLower(hex)]
}

// BySquawk returns all snapshot records currently wearing a beacon code.
func (s *Snapshot) BySquawk(squawk string) []*Aircraft {
	if s == nil {
		return nil
	}
	return s.bySquawk[squawk]
}

// Len returns the deduplicated aircraft count.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byHex)
}

// MatchSquawk picks the candidate nearest pos among those within maxNM and
// maxAltDiff feet. An altitude of 0 means no Mode-C and skips the altitude
// gate.
func (s *Snapshot) MatchSquawk(squawk string, pos geo.Point, altitude int, maxNM float64, maxAltDiff int) *Aircraft {
	var best *Aircraft
	bestD := maxNM
	for _, a := range s.BySquawk(squawk) {
		if a.Lat == 0 && a.Lon == 0 {
			continue
		}
		if altitude != 0 {
			diff := a.Altitude() - altitude
			if diff < -maxAltDiff || diff > maxAltDiff {
				continue
			}
		}
		d := geo.DistanceNM(pos, geo.Point{Lat: a.Lat, Lon: a.Lon})
		if d <= bestD {
			best, bestD = a, d
		}
	}
	return best
}

// fetchSnapshot pulls every region and merges by hex; the circles overlap
// and an aircraft must only appear once.
func fetchSnapshot(ctx context.Context, c *Client, regions []Region, log *slog.Logger) *Snapshot {
	snap := &Snapshot{
		Taken:    time.Now().UTC(),
		byHex:    make(map[string]*Aircraft),
		bySquawk: make(map[string][]*Aircraft),
	}
	for _, r := range regions {
		acs, err := c.Within(ctx, r.Lat, r.Lon, r.RadiusNM)
		if err != nil {
			log.Warn("adsb: region fetch failed", "region", r.Name, "error", err)
			continue
		}
		for i := range acs {
			a := &acs[i]
			hex := strings.ToLower(a.Hex)
			if hex == "" || snap.byHex[hex] != nil {
				continue
			}
			snap.byHex[hex] = a
			if a.Squawk != "" {
				snap.bySquawk[a.Squawk] = append(snap.bySquawk[a.Squawk], a)
			}
		}
	}
	return snap
}
