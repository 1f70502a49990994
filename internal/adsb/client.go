// Package adsb enriches feed-derived tracks from a public ADS-B aggregator:
// a regional snapshot loop fills in callsigns and types for tracks the
// terminal feed only knows by beacon code or Mode-S address, and a military
// injection loop surfaces military traffic the feeds never carry.
package adsb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the public aggregator endpoint.
const DefaultBaseURL = "https://opendata.adsb.fi/api"

// minRequestInterval keeps the client inside the aggregator's anonymous
// rate limit.
const minRequestInterval = 1100 * time.Millisecond

var (
	ErrNonOKResponse = errors.New("non-OK response")
	ErrEmptyBody     = errors.New("empty response body")
)

// Aircraft is one aggregator aircraft record, v2 API shape.
type Aircraft struct {
	Hex          string  `json:"hex"`
	Flight       string  `json:"flight"`
	Registration string  `json:"r"`
	IcaoType     string  `json:"t"`
	AltBaro      any     `json:"alt_baro"` // feet, or the string "ground"
	GroundSpeed  float64 `json:"gs"`
	Track        float64 `json:"track"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Squawk       string  `json:"squawk"`
	Seen         float64 `json:"seen"`
	SeenPos      float64 `json:"seen_pos"`
	DBFlags      int     `json:"dbFlags"`
}

// Callsign returns the trimmed flight identifier.
func (a *Aircraft) Callsign() string {
	return strings.TrimSpace(a.Flight)
}

// Altitude returns the barometric altitude in feet; aircraft on the ground
// report zero.
func (a *Aircraft) Altitude() int {
	switch v := a.AltBaro.(type) {
	case float64:
		return int(v)
	case string:
		// "ground"
		return 0
	}
	return 0
}

// OnGround reports whether the altitude field carried the ground marker.
func (a *Aircraft) OnGround() bool {
	s, ok := a.AltBaro.(string)
	return ok && s == "ground"
}

// Military reports whether the aircraft is military: US military Mode-S
// block (AE/AF prefixes) or the aggregator's military database bit.
func (a *Aircraft) Military() bool {
	hex := strings.ToUpper(a.Hex)
	return strings.HasPrefix(hex, "AE") || strings.HasPrefix(hex, "AF") || a.DBFlags&1 != 0
}

type queryResult struct {
	Aircraft []Aircraft `json:"aircraft"`
	Total    int        `json:"resultCount"`
}

// Client is a rate-limited aggregator client. All requests share a single
// in-flight slot and a minimum spacing; the aggregator bans callers that
// burst.
type Client struct {
	base string
	http *http.Client

	mu       sync.Mutex
	lastDone time.Time
}

// NewClient returns a client against base (DefaultBaseURL for "").
func NewClient(base string, hc *http.Client) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: strings.TrimRight(base, "/"), http: hc}
}

// Within returns all aircraft within distNM of a point.
func (c *Client) Within(ctx context.Context, lat, lon, distNM float64) ([]Aircraft, error) {
	url := fmt.Sprintf("%s/v3/lat/%.6f/lon/%.6f/dist/%.0f", c.base, lat, lon, distNM)
	var res queryResult
	if err := c.get(ctx, url, &res); err != nil {
		return nil, err
	}
	return res.Aircraft, nil
}

// ByHex looks up one aircraft by Mode-S address.
func (c *Client) ByHex(ctx context.Context, hex string) (*Aircraft, error) {
	url := fmt.Sprintf("%s/v2/hex/%s", c.base, strings.ToLower(hex))
	var res queryResult
	if err := c.get(ctx, url, &res); err != nil {
		return nil, err
	}
	if len(res.Aircraft) == 0 {
		return nil, nil
	}
	return &res.Aircraft[0], nil
}

// Military returns all military-flagged aircraft the aggregator sees.
func (c *Client) Military(ctx context.Context) ([]Aircraft, error) {
	var res queryResult
	if err := c.get(ctx, c.base+"/v2/mil", &res); err != nil {
		return nil, err
	}
	return res.Aircraft, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := minRequestInterval - time.Since(c.lastDone); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	defer func() { c.lastDone = time.Now() }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("adsb get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("adsb get %s: %w: %s", url, ErrNonOKResponse, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return ErrEmptyBody
	}
	return json.Unmarshal(body, out)
}
