package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npc-cognition/internal/stimulus"
)

// sky is the fake API's current report.
type sky struct {
	mu    sync.Mutex
	main  string
	desc  string
	calls atomic.Int32
}

func (s *sky) set(main, desc string) {
	s.mu.Lock()
	s.main, s.desc = main, desc
	s.mu.Unlock()
}

func fakeAPI(t *testing.T, s *sky) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		assert.Equal(t, "key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		s.mu.Lock()
		defer s.mu.Unlock()
		fmt.Fprintf(w, `{"main":{"temp":12.5},"weather":[{"main":%q,"description":%q}],"wind":{"speed":3}}`, s.main, s.desc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientWithoutKey(t *testing.T) {
	assert.Nil(t, NewClient("", "Lisbon,PT"))
	assert.Nil(t, NewFeed(nil))
}

func TestFetchParsesAndCaches(t *testing.T) {
	s := &sky{main: "Rain", desc: "light rain"}
	srv := fakeAPI(t, s)

	c := NewClient("key", "Lisbon,PT")
	c.baseURL = srv.URL

	got, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, got.IsRain)
	assert.False(t, got.IsStorm)
	assert.Equal(t, "light rain", got.Description)
	assert.InDelta(t, 12.5, got.Temp, 1e-9)

	_, err = c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.calls.Load(), "second fetch within TTL is served from cache")
}

func TestFetchErrorBacksOff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("key", "")
	c.baseURL = srv.URL
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backoff")
}

func TestDescribe(t *testing.T) {
	content, intensity := Describe(&Conditions{IsStorm: true, Temp: 20})
	assert.Contains(t, content, "storm")
	assert.InDelta(t, 0.8, intensity, 1e-9)

	content, intensity = Describe(&Conditions{Description: "clear sky", Temp: 38})
	assert.Equal(t, "The sky turns to clear sky. The heat is stifling.", content)
	assert.InDelta(t, 0.35, intensity, 1e-9)

	_, intensity = Describe(&Conditions{IsStorm: true, Temp: -20})
	assert.Equal(t, 1.0, intensity)
}

func TestFeedEmitsOnChange(t *testing.T) {
	s := &sky{main: "Clear", desc: "clear sky"}
	srv := fakeAPI(t, s)

	c := NewClient("key", "Lisbon,PT")
	c.baseURL = srv.URL
	c.cacheTTL = 0
	f := NewFeed(c)

	ev, ok := f.Next(context.Background(), 60)
	require.True(t, ok)
	assert.Equal(t, stimulus.TypeEnvironment, ev.Type)
	assert.Equal(t, uint64(60), ev.Tick)
	assert.Empty(t, ev.Actor)
	assert.Equal(t, "weather", ev.Attributes["source"])
	require.NoError(t, stimulus.Validate(ev))

	_, ok = f.Next(context.Background(), 120)
	assert.False(t, ok, "unchanged weather is not repeated")

	s.set("Thunderstorm", "thunderstorm")
	ev, ok = f.Next(context.Background(), 180)
	require.True(t, ok)
	assert.Equal(t, "0.80", ev.Attributes["intensity"])
}
