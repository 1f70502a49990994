package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"swimfeed/internal/correlate"
	"swimfeed/internal/geo"
	"swimfeed/internal/nasr"
	"swimfeed/internal/persist"
	"swimfeed/internal/route"
	"swimfeed/internal/state"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"activeFlights":  s.Store.FlightCount(),
		"surfaceTracks":  len(s.Store.SurfaceSnapshots("")),
		"terminalTracks": len(s.Store.TerminalSnapshots("")),
		"towerAircraft":  len(s.Store.TowerSnapshots("")),
		"subscribers":    s.Hub.SubscriberCount(),
		"drops":          s.Tel.Drops(),
	}
	if s.Sessions != nil {
		stats["sessions"] = s.Sessions()
	}
	if s.NASR != nil {
		stats["nasr"] = s.NASR.Status()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleFlight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec := s.Store.Flight(id)
	if rec == nil {
		writeError(w, http.StatusNotFound, "no such flight")
		return
	}
	writeJSON(w, http.StatusOK, rec.Snapshot())
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec := s.Store.Flight(id)
	if rec == nil {
		writeError(w, http.StatusNotFound, "no such flight")
		return
	}
	snap := rec.Snapshot()
	var points []route.Waypoint
	if s.Resolver != nil {
		points = s.Resolver.Resolve(snap.Origin, snap.Destination, snap.RouteText)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"gufi":        snap.GUFI,
		"origin":      snap.Origin,
		"destination": snap.Destination,
		"route":       snap.RouteText,
		"waypoints":   points,
	})
}

// index returns the current aeronautical index or fails the request when no
// cycle has loaded yet.
func (s *Server) index(w http.ResponseWriter) *nasr.Index {
	if s.NASR == nil {
		writeError(w, http.StatusServiceUnavailable, "aeronautical data disabled")
		return nil
	}
	idx := s.NASR.Index()
	if idx == nil {
		writeError(w, http.StatusServiceUnavailable, "aeronautical data not loaded")
		return nil
	}
	return idx
}

func (s *Server) handleNASRStatus(w http.ResponseWriter, r *http.Request) {
	if s.NASR == nil {
		writeError(w, http.StatusServiceUnavailable, "aeronautical data disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.NASR.Status())
}

func (s *Server) handleNASRFind(w http.ResponseWriter, r *http.Request) {
	idx := s.index(w)
	if idx == nil {
		return
	}
	id := chi.URLParam(r, "id")
	near := geo.Point{
		Lat: queryFloat(r, "lat"),
		Lon: queryFloat(r, "lon"),
	}
	pos, kind, ok := idx.Find(id, near)
	if !ok {
		writeError(w, http.StatusNotFound, "no such identifier")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":   strings.ToUpper(id),
		"kind": kind,
		"pos":  pos,
	})
}

func (s *Server) handleNASRAirways(w http.ResponseWriter, r *http.Request) {
	idx := s.index(w)
	if idx == nil {
		return
	}
	airways := idx.Airways(r.URL.Query().Get("type"))
	sort.Slice(airways, func(i, j int) bool { return airways[i].ID < airways[j].ID })
	writeJSON(w, http.StatusOK, airways)
}

func (s *Server) handleNASRProcedures(w http.ResponseWriter, r *http.Request) {
	idx := s.index(w)
	if idx == nil {
		return
	}
	airport := r.URL.Query().Get("airport")
	kind := nasr.ProcKind(strings.ToLower(r.URL.Query().Get("type")))
	procs := idx.ProceduresAt(airport, kind)
	sort.Slice(procs, func(i, j int) bool { return procs[i].Code < procs[j].Code })
	writeJSON(w, http.StatusOK, procs)
}

// procGeo is one procedure with its fixes resolved to coordinates.
type procGeo struct {
	Code        string                      `json:"code"`
	Kind        nasr.ProcKind               `json:"kind"`
	Airport     string                      `json:"airport"`
	Body        []route.Waypoint            `json:"body"`
	Transitions map[string][]route.Waypoint `json:"transitions,omitempty"`
}

func (s *Server) handleNASRProcGeo(w http.ResponseWriter, r *http.Request) {
	idx := s.index(w)
	if idx == nil {
		return
	}
	name := r.URL.Query().Get("q")
	if name == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}
	kind := nasr.ProcKind(strings.ToLower(r.URL.Query().Get("type")))

	var out []procGeo
	for _, p := range idx.Procedures(name) {
		if kind != "" && p.Kind != kind {
			continue
		}
		anchor := geo.Point{}
		if a, ok := idx.FindAirport(p.Airport); ok {
			anchor = a.Pos
		}
		g := procGeo{Code: p.Code, Kind: p.Kind, Airport: p.Airport, Body: resolveFixes(idx, p.Body, anchor)}
		if len(p.Transitions) > 0 {
			g.Transitions = make(map[string][]route.Waypoint)
			for key, tr := range p.Transitions {
				// Transitions are keyed both by name and endpoint; only emit
				// the named entries to avoid duplicates.
				if key != tr.Name {
					continue
				}
				g.Transitions[tr.Name] = resolveFixes(idx, tr.Fixes, anchor)
			}
		}
		out = append(out, g)
	}
	if out == nil {
		writeError(w, http.StatusNotFound, "no such procedure")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func resolveFixes(idx *nasr.Index, names []string, anchor geo.Point) []route.Waypoint {
	out := make([]route.Waypoint, 0, len(names))
	for _, name := range names {
		if pos, _, ok := idx.Find(name, anchor); ok {
			out = append(out, route.Waypoint{Name: name, Pos: pos})
			anchor = pos
		}
	}
	return out
}

func (s *Server) handleNASRNavaids(w http.ResponseWriter, r *http.Request) {
	idx := s.index(w)
	if idx == nil {
		return
	}
	navaids := idx.Navaids()
	sort.Slice(navaids, func(i, j int) bool { return navaids[i].ID < navaids[j].ID })
	writeJSON(w, http.StatusOK, navaids)
}

func (s *Server) handleNASRAirports(w http.ResponseWriter, r *http.Request) {
	idx := s.index(w)
	if idx == nil {
		return
	}
	// The class query narrows to airports with derived airspace class, the
	// map-overlay set.
	if r.URL.Query().Get("class") != "" {
		writeJSON(w, http.StatusOK, idx.ClassAirports())
		return
	}
	airports := idx.Airports()
	sort.Slice(airports, func(i, j int) bool { return airports[i].LID < airports[j].LID })
	writeJSON(w, http.StatusOK, airports)
}

func (s *Server) handleNASRCenterlines(w http.ResponseWriter, r *http.Request) {
	idx := s.index(w)
	if idx == nil {
		return
	}
	writeJSON(w, http.StatusOK, idx.Centerlines(r.URL.Query().Get("airport")))
}

func (s *Server) handleASDEXList(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	for _, t := range s.Store.SurfaceSnapshots("") {
		counts[t.Airport]++
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleASDEX(w http.ResponseWriter, r *http.Request) {
	airport := strings.ToUpper(chi.URLParam(r, "airport"))
	tracks := s.Store.SurfaceSnapshots(airport)
	if s.Corr != nil {
		s.Corr.EnrichBatch(tracks)
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleGateCodesGet(w http.ResponseWriter, r *http.Request) {
	if s.Gates == nil {
		writeError(w, http.StatusServiceUnavailable, "gate codes disabled")
		return
	}
	airport := strings.ToUpper(chi.URLParam(r, "airport"))
	writeJSON(w, http.StatusOK, s.Gates.Get(airport))
}

func (s *Server) handleGateCodesPut(w http.ResponseWriter, r *http.Request) {
	if s.Gates == nil {
		writeError(w, http.StatusServiceUnavailable, "gate codes disabled")
		return
	}
	airport := strings.ToUpper(chi.URLParam(r, "airport"))
	var patterns []correlate.GatePattern
	if err := json.NewDecoder(r.Body).Decode(&patterns); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pattern list: "+err.Error())
		return
	}
	if err := s.Gates.Set(airport, patterns); err != nil {
		s.Log.Error("api: gate code save failed", "airport", airport, "error", err)
		writeError(w, http.StatusInternalServerError, "save failed")
		return
	}
	writeJSON(w, http.StatusOK, s.Gates.Get(airport))
}

func (s *Server) handleTDLSList(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	for _, ac := range s.Store.TowerSnapshots("") {
		counts[ac.Airport]++
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleTDLS(w http.ResponseWriter, r *http.Request) {
	airport := strings.ToUpper(chi.URLParam(r, "airport"))
	writeJSON(w, http.StatusOK, s.Store.TowerSnapshots(airport))
}

func (s *Server) handleTDLSAircraft(w http.ResponseWriter, r *http.Request) {
	key := state.TowerKey{
		Airport:    strings.ToUpper(chi.URLParam(r, "airport")),
		AircraftID: strings.ToUpper(chi.URLParam(r, "aircraftId")),
	}
	ac, ok := s.Store.Tower(key)
	if !ok {
		writeError(w, http.StatusNotFound, "no such aircraft")
		return
	}
	writeJSON(w, http.StatusOK, ac)
}

func (s *Server) handleTAISList(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	for _, t := range s.Store.TerminalSnapshots("") {
		counts[t.Facility]++
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleTAIS(w http.ResponseWriter, r *http.Request) {
	facility := strings.ToUpper(chi.URLParam(r, "facility"))
	writeJSON(w, http.StatusOK, s.Store.TerminalSnapshots(facility))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}
	q := persist.HistoryQuery{
		Query: r.URL.Query().Get("q"),
		Date:  r.URL.Query().Get("date"),
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		q.Limit = n
	}
	rows, err := s.History.Search(q)
	if err != nil {
		s.Log.Error("api: history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleHistoryDates(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}
	days, err := s.History.Dates()
	if err != nil {
		s.Log.Error("api: history dates failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (s *Server) handleDebugPaths(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Tel.Paths())
}

func (s *Server) handleDebugSamples(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		writeJSON(w, http.StatusOK, s.Tel.SampleKinds())
		return
	}
	writeJSON(w, http.StatusOK, s.Tel.Samples(kind))
}

func queryFloat(r *http.Request, key string) float64 {
	v, _ := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	return v
}
