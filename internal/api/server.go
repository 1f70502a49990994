// Package api serves the REST and streaming surface: merged state lookups,
// aeronautical data queries, route expansion, gate-code editing, flight
// history, and the per-scope live streams.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"swimfeed/internal/correlate"
	"swimfeed/internal/decode"
	"swimfeed/internal/fanout"
	"swimfeed/internal/nasr"
	"swimfeed/internal/persist"
	"swimfeed/internal/route"
	"swimfeed/internal/state"
	"swimfeed/internal/swim"
)

// Server holds every dependency the handlers read. Optional fields are
// documented; a nil optional disables its endpoints with 503.
type Server struct {
	Store    *state.Store
	Hub      *fanout.Hub
	Corr     *correlate.Correlator
	NASR     *nasr.Manager
	Resolver *route.Resolver
	Gates    *correlate.GateCodes
	History  *persist.History // optional
	Tel      *decode.Telemetry
	Sessions func() []swim.Status // optional
	Log      *slog.Logger

	Started time.Time
}

// Router builds the full route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/stats", s.handleStats)

	r.Get("/api/flights/{id}", s.handleFlight)
	r.Get("/api/route/{id}", s.handleRoute)

	r.Route("/api/nasr", func(r chi.Router) {
		r.Get("/status", s.handleNASRStatus)
		r.Get("/find/{id}", s.handleNASRFind)
		r.Get("/airways", s.handleNASRAirways)
		r.Get("/procedures", s.handleNASRProcedures)
		r.Get("/procgeo", s.handleNASRProcGeo)
		r.Get("/navaids", s.handleNASRNavaids)
		r.Get("/airports", s.handleNASRAirports)
		r.Get("/centerlines", s.handleNASRCenterlines)
	})

	r.Route("/api/asdex", func(r chi.Router) {
		r.Get("/", s.handleASDEXList)
		r.Get("/{airport}", s.handleASDEX)
		r.Get("/{airport}/gatecodes", s.handleGateCodesGet)
		r.Put("/{airport}/gatecodes", s.handleGateCodesPut)
	})

	r.Route("/api/tdls", func(r chi.Router) {
		r.Get("/", s.handleTDLSList)
		r.Get("/{airport}", s.handleTDLS)
		r.Get("/{airport}/{aircraftId}", s.handleTDLSAircraft)
	})

	r.Route("/api/tais", func(r chi.Router) {
		r.Get("/", s.handleTAISList)
		r.Get("/{facility}", s.handleTAIS)
	})

	r.Get("/api/history", s.handleHistory)
	r.Get("/api/history/dates", s.handleHistoryDates)

	r.Get("/api/debug/paths", s.handleDebugPaths)
	r.Get("/api/debug/samples", s.handleDebugSamples)

	r.Get("/stream/flights", s.stream(fanout.Scope{Kind: fanout.ScopeFlights}))
	r.Get("/stream/asdex/{airport}", s.streamParam(fanout.ScopeSurface, "airport"))
	r.Get("/stream/tais/{facility}", s.streamParam(fanout.ScopeTerminal, "facility"))
	r.Get("/stream/tdls/{airport}", s.streamParam(fanout.ScopeTower, "airport"))
	r.Get("/stream/scope/{facility}", s.handleScopeStream)

	return r
}

// corsMiddleware opens the API to browser front-ends served elsewhere.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.Started).Round(time.Second).String(),
	})
}

// isWebsocket reports whether the request asks for a WebSocket upgrade;
// plain GETs on the stream endpoints fall back to NDJSON.
func isWebsocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (s *Server) stream(scope fanout.Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if isWebsocket(r) {
			s.Hub.ServeWS(w, r, scope)
			return
		}
		s.Hub.ServeNDJSON(w, r, scope)
	}
}

func (s *Server) streamParam(kind fanout.ScopeKind, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		val := strings.ToUpper(chi.URLParam(r, param))
		scope := fanout.Scope{Kind: kind}
		if param == "facility" {
			scope.Facility = val
		} else {
			scope.Airport = val
		}
		if isWebsocket(r) {
			s.Hub.ServeWS(w, r, scope)
			return
		}
		s.Hub.ServeNDJSON(w, r, scope)
	}
}

// handleScopeStream is the msgpack downstream scope protocol; it only speaks
// WebSocket.
func (s *Server) handleScopeStream(w http.ResponseWriter, r *http.Request) {
	facility := strings.ToUpper(chi.URLParam(r, "facility"))
	if !isWebsocket(r) {
		writeError(w, http.StatusBadRequest, "scope stream requires a websocket upgrade")
		return
	}
	s.Hub.ServeScopeWS(w, r, facility)
}
