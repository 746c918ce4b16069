package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npc-cognition/internal/decision"
	"github.com/talgya/npc-cognition/internal/engine"
	"github.com/talgya/npc-cognition/internal/persistence"
	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/stimulus"
	"github.com/talgya/npc-cognition/internal/tools"
)

const adminKey = "secret"

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	sim := engine.NewSimulation(engine.Options{Seed: 17, Concurrency: 2, ActionTimeout: time.Second},
		stimulus.DefaultInterpreter(), tools.NewDefaultRegistry())
	for _, preset := range []string{"aggressive", "friendly"} {
		p, err := personality.FromPreset(preset, nil, nil)
		require.NoError(t, err)
		p.Name = strings.ToUpper(preset[:1]) + preset[1:]
		_, err = sim.Spawn(p, decision.DefaultConfig())
		require.NoError(t, err)
	}

	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := &Server{Sim: sim, Eng: engine.NewEngine(), DB: db, AdminKey: adminKey, RelayKey: "relay", InjectRate: 3}
	h := s.Handler()
	t.Cleanup(s.limiter.Close)
	return s, h
}

func do(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusAndCharacters(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, http.MethodGet, "/api/v1/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, float64(2), status["characters"])
	assert.Equal(t, "Day 1, 0:00", status["sim_time"])

	rec = do(h, http.MethodGet, "/api/v1/characters", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []engine.CharacterView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "Aggressive", views[0].Name)
	assert.InDelta(t, 0.9, views[0].Baseline[personality.Aggressiveness], 1e-9)

	rec = do(h, http.MethodGet, "/api/v1/character/Friendly", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(h, http.MethodGet, "/api/v1/character/nobody", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(h, http.MethodGet, "/api/v1/character/Friendly/bogus", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInjectEventThenHistory(t *testing.T) {
	s, h := newTestServer(t)

	body := `{"character":"Aggressive","event":{"type":"dialogue","actor":"rival","content":"You're a pathetic fool."}}`
	rec := do(h, http.MethodPost, "/api/v1/event", body, adminKey)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp struct {
		EventID string `json:"event_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.EventID)

	s.Sim.TickMinute(1)

	rec = do(h, http.MethodGet, "/api/v1/character/Aggressive/history?limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []decision.DecisionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, resp.EventID, records[0].Stimulus.EventID)
	assert.Equal(t, stimulus.SchemaInsult, records[0].Stimulus.Schema)

	rec = do(h, http.MethodGet, "/api/v1/events?category=decision", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []engine.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)

	// Snapshot persists the decision for the stored-history view.
	rec = do(h, http.MethodPost, "/api/v1/snapshot", "", adminKey)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(h, http.MethodGet, "/api/v1/character/Aggressive/history?source=db", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	records = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
}

func TestInjectEventErrors(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, http.MethodPost, "/api/v1/event", `{"character":"Aggressive","event":{"type":"dialogue","content":"hi"}}`, adminKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "actor")

	rec = do(h, http.MethodPost, "/api/v1/event", `{"character":"Ghost","event":{"type":"environment"}}`, adminKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodPost, "/api/v1/event", `{`, adminKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodGet, "/api/v1/event", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminAuth(t *testing.T) {
	s, h := newTestServer(t)

	rec := do(h, http.MethodPost, "/api/v1/speed", `{"speed":5}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(h, http.MethodPost, "/api/v1/speed", `{"speed":5}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodPost, "/api/v1/speed", `{"speed":5}`, adminKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5.0, s.Eng.Speed())

	rec = do(h, http.MethodPost, "/api/v1/speed", `{"speed":-2}`, adminKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodGet, "/api/v1/speed", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	s.AdminKey = ""
	rec = do(h, http.MethodPost, "/api/v1/snapshot", "", "anything")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestContextEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, http.MethodPost, "/api/v1/context", `{"character":"Friendly","dimension":"stress","delta":0.3}`, adminKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ctx personality.ContextModifiers
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ctx))
	assert.InDelta(t, 0.3, ctx.Stress, 1e-9)

	rec = do(h, http.MethodPost, "/api/v1/context", `{"character":"Friendly","dimension":"trust","actor":"Aggressive","delta":-0.5}`, adminKey)
	require.Equal(t, http.StatusOK, rec.Code)
	ctx = personality.ContextModifiers{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ctx))
	assert.InDelta(t, -0.5, ctx.TrustToward("Aggressive"), 1e-9)

	rec = do(h, http.MethodPost, "/api/v1/context", `{"character":"Friendly","dimension":"courage","delta":0.3}`, adminKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(h, http.MethodPost, "/api/v1/context", `{"character":"Friendly","dimension":"trust","delta":0.3}`, adminKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(h, http.MethodPost, "/api/v1/context", `{"character":"Ghost","dimension":"mood","delta":0.3}`, adminKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInjectRateLimited(t *testing.T) {
	_, h := newTestServer(t)
	body := `{"character":"Friendly","event":{"type":"environment","content":"Rain."}}`
	for i := 0; i < 3; i++ {
		rec := do(h, http.MethodPost, "/api/v1/event", body, adminKey)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := do(h, http.MethodPost, "/api/v1/event", body, adminKey)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestToolsAndMetrics(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, http.MethodGet, "/api/v1/tools", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []struct {
		Name          string `json:"name"`
		Sensitivities []struct {
			Trait  string  `json:"trait"`
			Weight float64 `json:"weight"`
		} `json:"sensitivities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 12)
	assert.Equal(t, tools.NameDialogueResponse, list[0].Name)
	assert.Equal(t, "aggressiveness", list[0].Sensitivities[0].Trait)

	rec = do(h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/api/v1/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stored_tool_usage")
}

func TestToolsReportConfiguredSensitivities(t *testing.T) {
	s, h := newTestServer(t)
	s.Decision = decision.DefaultConfig()
	s.Decision.Sensitivities = map[string][]tools.Sensitivity{
		tools.NameDialogueResponse: {{Trait: personality.Agreeableness, Weight: 0.4}},
	}

	rec := do(h, http.MethodGet, "/api/v1/tools", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []struct {
		Name          string `json:"name"`
		Sensitivities []struct {
			Trait  string  `json:"trait"`
			Weight float64 `json:"weight"`
		} `json:"sensitivities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, tools.NameDialogueResponse, list[0].Name)
	require.Len(t, list[0].Sensitivities, 1)
	assert.Equal(t, "agreeableness", list[0].Sensitivities[0].Trait)
	assert.Equal(t, 0.4, list[0].Sensitivities[0].Weight)
	assert.Equal(t, "neuroticism", list[1].Sensitivities[0].Trait, "tools without an override keep their own")
}

func TestStreamAuth(t *testing.T) {
	s, h := newTestServer(t)

	rec := do(h, http.MethodGet, "/api/v1/stream", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(h, http.MethodGet, "/api/v1/stream", "", adminKey)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.RelayKey = ""
	rec = do(h, http.MethodGet, "/api/v1/stream", "", "relay")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORS(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))
	assert.Equal(t, 61, rl.RetryAfter("1.2.3.4"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"))

	now = now.Add(3 * time.Minute)
	rl.cleanup()
	assert.Equal(t, 0, rl.RetryAfter("5.6.7.8"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
