// Package route expands filed route strings into plottable point sequences
// using the aeronautical index: airway walks, SID/STAR expansion with
// transitions, and fix-radial-distance elements.
package route

import (
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"swimfeed/internal/geo"
	"swimfeed/internal/nasr"
)

// Waypoint is one resolved route point.
type Waypoint struct {
	Name string    `json:"name"`
	Pos  geo.Point `json:"pos"`
}

// airwayPattern matches US airway identifiers: J, V, Q, T, L, M, N or P
// followed by digits.
var airwayPattern = regexp.MustCompile(`^[JVQTLMNP]\d+$`)

// frdSuffix matches the radial+distance tail of a fix-radial-distance
// element (BOS090025: the 090 radial of BOS at 25 NM).
var frdSuffix = regexp.MustCompile(`^([A-Z]{2,5})(\d{3})(\d{3})$`)

const (
	cacheSize = 2048
	cacheTTL  = time.Hour

	// anchorToleranceNM treats a procedure fix this close to the anchor as
	// already overflown.
	anchorToleranceNM = 1.0
)

// Resolver expands routes against whatever index the provider currently
// returns. Results are cached per (origin, destination, route) until the
// TTL runs out or the cycle rolls over.
type Resolver struct {
	index func() *nasr.Index
	cache *expirable.LRU[string, []Waypoint]
}

// NewResolver returns a resolver reading the index through provider.
func NewResolver(provider func() *nasr.Index) *Resolver {
	return &Resolver{
		index: provider,
		cache: expirable.NewLRU[string, []Waypoint](cacheSize, nil, cacheTTL),
	}
}

// ClearCache drops every cached expansion. Hook it to the index manager's
// cycle-swap callback.
func (r *Resolver) ClearCache(*nasr.Index) {
	r.cache.Purge()
}

// Resolve expands one filed route. A nil index (cycle not loaded yet)
// yields nil.
func (r *Resolver) Resolve(origin, dest, routeText string) []Waypoint {
	idx := r.index()
	if idx == nil {
		return nil
	}
	key := origin + ":" + dest + ":" + routeText
	if wps, ok := r.cache.Get(key); ok {
		return wps
	}
	wps := expand(idx, origin, dest, routeText)
	r.cache.Add(key, wps)
	return wps
}

type expansion struct {
	idx *nasr.Index
	out []Waypoint
}

func (e *expansion) anchor() geo.Point {
	if len(e.out) == 0 {
		return geo.Point{}
	}
	return e.out[len(e.out)-1].Pos
}

func (e *expansion) lastName() string {
	if len(e.out) == 0 {
		return ""
	}
	return e.out[len(e.out)-1].Name
}

// push appends a waypoint unless it repeats the one just plotted.
func (e *expansion) push(name string, p geo.Point) {
	if n := len(e.out); n > 0 && e.out[n-1].Pos == p {
		return
	}
	e.out = append(e.out, Waypoint{Name: name, Pos: p})
}

func expand(idx *nasr.Index, origin, dest, routeText string) []Waypoint {
	e := &expansion{idx: idx}

	if a, ok := idx.FindAirport(origin); ok {
		e.push(strings.ToUpper(origin), a.Pos)
	}

	tokens := tokenize(routeText)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		next := ""
		if i+1 < len(tokens) {
			next = tokens[i+1]
		}

		switch {
		case airwayPattern.MatchString(tok):
			if e.walkAirway(tok, next) {
				i++ // the exit fix was consumed by the walk
			}
		case sameAirport(tok, origin) || sameAirport(tok, dest):
			// The filed string often repeats the endpoints.
		case e.pushDirect(tok):
		case e.pushFRD(tok):
		case e.expandProcedure(tok, next, origin, dest):
		}
	}

	if a, ok := idx.FindAirport(dest); ok {
		e.push(strings.ToUpper(dest), a.Pos)
	}
	return e.out
}

// tokenize splits on spaces and dots, drops DCT and bare slashes, and
// strips speed/altitude qualifiers after the first slash in a token.
func tokenize(routeText string) []string {
	raw := strings.FieldsFunc(strings.ToUpper(routeText), func(r rune) bool {
		return r == ' ' || r == '.' || r == '\t'
	})
	out := raw[:0]
	for _, t := range raw {
		if i := strings.IndexByte(t, '/'); i >= 0 {
			t = t[:i]
		}
		if t == "" || t == "DCT" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// sameAirport compares route tokens to an endpoint airport, tolerating the
// ICAO-vs-LID spelling difference.
func sameAirport(tok, airport string) bool {
	if airport == "" {
		return false
	}
	tok, airport = strings.ToUpper(tok), strings.ToUpper(airport)
	return tok == airport || lidOf(tok) == lidOf(airport)
}

// lidOf strips the leading K or P from a 4-letter ICAO code.
func lidOf(id string) string {
	if len(id) == 4 && (id[0] == 'K' || id[0] == 'P') {
		return id[1:]
	}
	return id
}

func (e *expansion) pushDirect(tok string) bool {
	p, _, ok := e.idx.Find(tok, e.anchor())
	if !ok {
		return false
	}
	e.push(tok, p)
	return true
}

// pushFRD resolves NAVAIDrrrddd: project from the navaid along the radial
// (magnetic, so station variation applies) for the given distance.
func (e *expansion) pushFRD(tok string) bool {
	m := frdSuffix.FindStringSubmatch(tok)
	if m == nil {
		return false
	}
	nav, ok := e.idx.FindNavaid(m[1], e.anchor())
	if !ok {
		return false
	}
	radial := float64(atoi(m[2]))
	dist := float64(atoi(m[3]))
	e.push(tok, geo.Project(nav.Pos, radial+nav.MagVar, dist))
	return true
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

// walkAirway plots the airway from the fix nearest the anchor to the exit
// fix named by the next token (or the end of the airway). It reports
// whether the next token was consumed as the exit.
func (e *expansion) walkAirway(id, next string) bool {
	aw, ok := e.idx.Airway(id)
	if !ok || len(aw.Fixes) == 0 {
		return false
	}

	pts := make([]geo.Point, len(aw.Fixes))
	for i, f := range aw.Fixes {
		if p, _, ok := e.idx.Find(f, e.anchor()); ok {
			pts[i] = p
		}
	}
	entry := geo.Nearest(e.anchor(), pts)

	exit := len(aw.Fixes) - 1
	consumed := false
	for i, f := range aw.Fixes {
		if f == next {
			exit, consumed = i, true
			break
		}
	}

	step := 1
	if exit < entry {
		step = -1
	}
	for i := entry; ; i += step {
		if !pts[i].IsZero() {
			e.push(aw.Fixes[i], pts[i])
		}
		if i == exit {
			break
		}
	}
	return consumed
}

// expandProcedure plots a SID or STAR named by tok, choosing the instance
// serving the flight's own endpoints.
func (e *expansion) expandProcedure(tok, next, origin, dest string) bool {
	var proc *nasr.Procedure
	for _, p := range e.idx.Procedures(tok) {
		if sameAirport(p.Airport, origin) || sameAirport(p.Airport, dest) {
			proc = p
			break
		}
	}
	if proc == nil {
		return false
	}
	switch proc.Kind {
	case nasr.ProcSTAR:
		e.expandSTAR(proc)
	case nasr.ProcSID:
		e.expandSID(proc, next)
	}
	return true
}

// expandSTAR plots the arrival: when the last-plotted fix is a transition
// entry, that transition leads into the body.
func (e *expansion) expandSTAR(proc *nasr.Procedure) {
	if t := proc.Transitions[e.lastName()]; t != nil && t.Endpoint == e.lastName() {
		for _, f := range t.Fixes[1:] {
			if p, _, ok := e.idx.Find(f, e.anchor()); ok {
				e.push(f, p)
			}
		}
	}
	for _, f := range proc.Body {
		if p, _, ok := e.idx.Find(f, e.anchor()); ok {
			e.push(f, p)
		}
	}
}

// expandSID plots the departure. If the next route token is a transition
// endpoint and the anchor already sits on that transition, only the
// remainder of the transition is plotted; otherwise the body is plotted
// from past the anchor, followed by the named transition if any.
func (e *expansion) expandSID(proc *nasr.Procedure, next string) {
	t := proc.Transitions[next]
	if t != nil && t.Endpoint == next {
		if i := e.indexOnLeg(t.Fixes); i >= 0 {
			for _, f := range t.Fixes[i+1:] {
				if p, _, ok := e.idx.Find(f, e.anchor()); ok {
					e.push(f, p)
				}
			}
			return
		}
	}

	start := e.indexOnLeg(proc.Body) + 1
	for _, f := range proc.Body[start:] {
		if p, _, ok := e.idx.Find(f, e.anchor()); ok {
			e.push(f, p)
		}
	}
	if t != nil {
		for _, f := range t.Fixes {
			if p, _, ok := e.idx.Find(f, e.anchor()); ok {
				e.push(f, p)
			}
		}
	}
}

// indexOnLeg finds the leg fix matching the anchor, by name or within a
// nautical mile, or -1.
func (e *expansion) indexOnLeg(fixes []string) int {
	last := e.lastName()
	anchor := e.anchor()
	for i, f := range fixes {
		if f == last {
			return i
		}
		if anchor.IsZero() {
			continue
		}
		if p, _, ok := e.idx.Find(f, anchor); ok && geo.DistanceNM(p, anchor) <= anchorToleranceNM {
			return i
		}
	}
	return -1
}
