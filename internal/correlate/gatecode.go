package correlate

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
)

// GatePattern maps a route shape to a short code shown on the surface
// scope. Tokens are whitespace-separated; a trailing # allows trailing
// digits on the matched route token (SSOXS# matches SSOXS4).
type GatePattern struct {
	Code    string `json:"code"`
	Pattern string `json:"pattern"`
}

// GateCodes is the per-airport pattern table, persisted as JSON so scope
// operators can edit it through the API.
type GateCodes struct {
	mu   sync.RWMutex
	path string
	m    map[string][]GatePattern
}

// NewGateCodes returns a table persisted at path; a missing file is an
// empty table.
func NewGateCodes(path string) (*GateCodes, error) {
	g := &GateCodes{path: path, m: make(map[string][]GatePattern)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &g.m); err != nil {
		return nil, err
	}
	return g, nil
}

// Get returns the pattern list for an airport.
func (g *GateCodes) Get(airport string) []GatePattern {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]GatePattern(nil), g.m[strings.ToUpper(airport)]...)
}

// All returns the whole table.
func (g *GateCodes) All() map[string][]GatePattern {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string][]GatePattern, len(g.m))
	for k, v := range g.m {
		out[k] = append([]GatePattern(nil), v...)
	}
	return out
}

// Set replaces an airport's pattern list and persists the table.
func (g *GateCodes) Set(airport string, patterns []GatePattern) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.m[strings.ToUpper(airport)] = patterns
	if g.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(g.m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(g.path, data, 0o644)
}

// Match finds the first pattern whose every token appears in the route.
// The route's token set includes each token both as filed and with
// trailing digits stripped.
func (g *GateCodes) Match(airport, route string) (string, bool) {
	if route == "" {
		return "", false
	}
	g.mu.RLock()
	patterns := g.m[strings.ToUpper(airport)]
	g.mu.RUnlock()
	if len(patterns) == 0 {
		return "", false
	}

	set := routeTokenSet(route)
	for _, p := range patterns {
		if patternMatches(p.Pattern, set) {
			return p.Code, true
		}
	}
	return "", false
}

func routeTokenSet(route string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToUpper(route)) {
		tok = strings.Trim(tok, ".")
		if tok == "" {
			continue
		}
		set[tok] = true
		if s := stripTrailingDigits(tok); s != tok {
			set[s] = true
		}
	}
	return set
}

func patternMatches(pattern string, set map[string]bool) bool {
	toks := strings.Fields(strings.ToUpper(pattern))
	if len(toks) == 0 {
		return false
	}
	for _, tok := range toks {
		tok = strings.TrimSuffix(tok, "#")
		if !set[tok] {
			return false
		}
	}
	return true
}

func stripTrailingDigits(s string) string {
	end := len(s)
	for end > 0 && s[end-1] >= '0' && s[end-1] <= '9' {
		end--
	}
	return s[:end]
}
