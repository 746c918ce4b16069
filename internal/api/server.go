// Package api provides the HTTP API for observing and steering the simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/npc-cognition/internal/decision"
	"github.com/talgya/npc-cognition/internal/engine"
	"github.com/talgya/npc-cognition/internal/persistence"
	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/stimulus"
)

const (
	maxSSEConns  = 2
	maxBodyBytes = 64 << 10

	// Injected events allowed per client per minute.
	defaultInjectRate = 30
)

// Server serves the simulation over HTTP.
type Server struct {
	Sim        *engine.Simulation
	Eng        *engine.Engine
	DB         *persistence.DB // optional; enables snapshots and stored history
	Port       int
	AdminKey   string          // Bearer token for POST endpoints. Empty = POST disabled.
	RelayKey   string          // Bearer token for SSE stream endpoint. Empty = streaming disabled.
	InjectRate int             // events per client per minute; 0 uses the default
	Decision   decision.Config // resolves the sensitivities reported by /tools

	// Active SSE connection count (atomic).
	sseConns int32

	httpServer *http.Server
	limiter    *RateLimiter
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	rate := s.InjectRate
	if rate <= 0 {
		rate = defaultInjectRate
	}
	if s.limiter == nil {
		s.limiter = NewRateLimiter(rate, time.Minute)
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/characters", s.handleCharacters)
	mux.HandleFunc("/api/v1/character/", s.handleCharacterRoutes)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/tools", s.handleTools)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.Handle("/metrics", promhttp.Handler())

	// SSE streaming endpoint (GET, requires the relay token).
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/event", s.adminOnly(RateLimitMiddleware(s.limiter, s.handleInjectEvent)))
	mux.HandleFunc("/api/v1/context", s.adminOnly(s.handleContext))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearer reports whether the request carries token.
func bearer(r *http.Request, token string) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == token
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no NPCSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !bearer(r, s.AdminKey) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tick := s.Sim.CurrentTick()
	status := map[string]any{
		"name":       "npcsim",
		"tick":       tick,
		"sim_time":   engine.SimTime(tick),
		"characters": len(s.Sim.Characters()),
		"stats":      s.Sim.Stats(),
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
	}
	writeJSON(w, status)
}

func (s *Server) handleCharacters(w http.ResponseWriter, r *http.Request) {
	chars := s.Sim.Characters()
	views := make([]engine.CharacterView, len(chars))
	for i, c := range chars {
		views[i] = c.View()
	}
	writeJSON(w, views)
}

// handleCharacterRoutes dispatches GET /api/v1/character/{id} and
// GET /api/v1/character/{id}/history. The key may be an ID or a name.
func (s *Server) handleCharacterRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/character/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "missing character id", http.StatusBadRequest)
		return
	}
	c, ok := s.Sim.Character(parts[0])
	if !ok {
		http.Error(w, "character not found", http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1:
		writeJSON(w, c.View())
	case len(parts) == 2 && parts[1] == "history":
		s.handleHistory(w, r, c)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, c *engine.Character) {
	limit := queryLimit(r, 20, 500)

	var records []decision.DecisionRecord
	if r.URL.Query().Get("source") == "db" {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		var err error
		records, err = s.DB.LoadDecisions(c.ID, limit)
		if err != nil {
			slog.Error("load decisions failed", "character", c.ID, "error", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
	} else {
		records = c.History().Recent(limit)
	}
	if records == nil {
		records = []decision.DecisionRecord{}
	}
	writeJSON(w, records)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	category := r.URL.Query().Get("category")
	character := r.URL.Query().Get("character")
	if character != "" {
		if c, ok := s.Sim.Character(character); ok {
			character = c.ID
		}
	}

	events := s.Sim.Events(0)
	if category != "" || character != "" {
		var filtered []engine.Event
		for _, e := range events {
			if category != "" && e.Category != category {
				continue
			}
			if character != "" && e.Character != character {
				continue
			}
			filtered = append(filtered, e)
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	out := events[start:]
	if out == nil {
		out = []engine.Event{}
	}
	writeJSON(w, out)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	type sensitivity struct {
		Trait  string  `json:"trait"`
		Weight float64 `json:"weight"`
	}
	type toolInfo struct {
		Name          string        `json:"name"`
		Sensitivities []sensitivity `json:"sensitivities"`
	}

	all := s.Sim.Registry.All()
	out := make([]toolInfo, len(all))
	for i, t := range all {
		info := toolInfo{Name: t.Name(), Sensitivities: []sensitivity{}}
		for _, sens := range s.Decision.SensitivitiesFor(t) {
			info.Sensitivities = append(info.Sensitivities, sensitivity{Trait: sens.Trait.String(), Weight: sens.Weight})
		}
		out[i] = info
	}
	writeJSON(w, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"live": s.Sim.Stats()}
	if s.DB != nil {
		usage, err := s.DB.ToolUsage()
		if err != nil {
			slog.Error("tool usage query failed", "error", err)
		} else {
			out["stored_tool_usage"] = usage
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleInjectEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Character string            `json:"character"`
		Event     stimulus.RawEvent `json:"event"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if _, ok := s.Sim.Character(req.Character); !ok {
		http.Error(w, "character not found", http.StatusNotFound)
		return
	}

	id, err := s.Sim.InjectEvent(req.Character, req.Event)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]any{"event_id": id, "tick": s.Sim.CurrentTick()})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Character string  `json:"character"`
		Dimension string  `json:"dimension"`
		Actor     string  `json:"actor,omitempty"`
		Delta     float64 `json:"delta"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	d, err := personality.ParseContextDimension(req.Dimension)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := s.Sim.Character(req.Character); !ok {
		http.Error(w, "character not found", http.StatusNotFound)
		return
	}

	ctx, err := s.Sim.ApplyContext(req.Character, d, req.Actor, req.Delta)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Info("context changed", "character", req.Character, "dimension", d, "actor", req.Actor, "delta", req.Delta)
	writeJSON(w, ctx)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.Eng.SetSpeed(req.Speed); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveWorldState(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved",
	})
}

// handleStream provides an SSE endpoint for real-time event streaming.
// Requires the relay token and limits concurrent connections.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.RelayKey == "" {
		http.Error(w, "streaming disabled (no relay key)", http.StatusForbidden)
		return
	}
	if !bearer(r, s.RelayKey) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Connection limit.
	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)

	// Send recent events as catch-up.
	for _, e := range s.Sim.Events(50) {
		writeSSEEvent(w, e)
	}
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, e)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSEEvent writes a single event in SSE format.
func writeSSEEvent(w http.ResponseWriter, e engine.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Category, data)
}

func queryLimit(r *http.Request, def, maxN int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= maxN {
			return n
		}
	}
	return def
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Error("write json failed", "error", err)
	}
}
