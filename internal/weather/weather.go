// Package weather turns real-world weather into environment stimuli.
// Conditions come from OpenWeatherMap; a Feed emits an event whenever
// they change so characters notice the rain starting, not every hour of it.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/npc-cognition/internal/stimulus"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Client fetches weather data from OpenWeatherMap.
type Client struct {
	apiKey   string
	location string
	baseURL  string
	client   *http.Client

	mu          sync.Mutex
	cached      *Conditions
	cachedAt    time.Time
	cacheTTL    time.Duration
	lastFailAt  time.Time
	failBackoff time.Duration
}

// NewClient creates a weather API client. Returns nil if apiKey is empty.
func NewClient(apiKey, location string) *Client {
	if apiKey == "" {
		return nil
	}
	if location == "" {
		location = "San Diego,US"
	}
	return &Client{
		apiKey:   apiKey,
		location: location,
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		cacheTTL: 5 * time.Minute,
	}
}

// Conditions holds parsed weather data from the API.
type Conditions struct {
	Temp        float64 `json:"temp"` // Celsius
	Description string  `json:"description"`
	WindSpeed   float64 `json:"wind_speed"` // m/s
	IsStorm     bool    `json:"is_storm"`
	IsSnow      bool    `json:"is_snow"`
	IsRain      bool    `json:"is_rain"`
}

// Fetch retrieves current weather conditions, using cache if fresh.
func (c *Client) Fetch(ctx context.Context) (*Conditions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && time.Since(c.cachedAt) < c.cacheTTL {
		return c.cached, nil
	}

	// Backoff on repeated failures (up to 10 minutes).
	if c.failBackoff > 0 && time.Since(c.lastFailAt) < c.failBackoff {
		if c.cached != nil {
			return c.cached, nil
		}
		return nil, fmt.Errorf("weather API backoff (%s remaining)", c.failBackoff-time.Since(c.lastFailAt))
	}

	conditions, err := c.fetchFromAPI(ctx)
	if err != nil {
		c.lastFailAt = time.Now()
		if c.failBackoff == 0 {
			c.failBackoff = 1 * time.Minute
		} else if c.failBackoff < 10*time.Minute {
			c.failBackoff *= 2
		}
		if c.cached != nil {
			return c.cached, nil
		}
		return nil, err
	}

	c.cached = conditions
	c.cachedAt = time.Now()
	c.failBackoff = 0 // Reset backoff on success.
	return conditions, nil
}

func (c *Client) fetchFromAPI(ctx context.Context) (*Conditions, error) {
	apiURL := fmt.Sprintf("%s?q=%s&appid=%s&units=metric",
		c.baseURL, url.QueryEscape(c.location), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather API call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read weather response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API error %d: %s", resp.StatusCode, string(body))
	}

	// Parse OpenWeatherMap response.
	var owm struct {
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}

	if err := json.Unmarshal(body, &owm); err != nil {
		return nil, fmt.Errorf("parse weather: %w", err)
	}

	conditions := &Conditions{
		Temp:      owm.Main.Temp,
		WindSpeed: owm.Wind.Speed,
	}

	if len(owm.Weather) > 0 {
		conditions.Description = owm.Weather[0].Description
		main := strings.ToLower(owm.Weather[0].Main)
		conditions.IsRain = main == "rain" || main == "drizzle"
		conditions.IsSnow = main == "snow"
		conditions.IsStorm = main == "thunderstorm" || conditions.WindSpeed > 15
	}

	slog.Debug("weather fetched", "temp", conditions.Temp, "desc", conditions.Description)
	return conditions, nil
}

// Describe phrases conditions as scene text and rates how hard they are
// to ignore, 0.0 to 1.0.
func Describe(c *Conditions) (content string, intensity float64) {
	switch {
	case c.IsStorm:
		content, intensity = "A storm breaks overhead, wind howling through the streets.", 0.8
	case c.IsSnow:
		content, intensity = "Snow begins to fall.", 0.5
	case c.IsRain:
		content, intensity = "Rain starts to come down.", 0.3
	case c.Description != "":
		content, intensity = "The sky turns to "+c.Description+".", 0.15
	default:
		content, intensity = "The weather shifts.", 0.1
	}

	// Extreme temperatures press harder.
	if c.Temp >= 35 {
		content += " The heat is stifling."
		intensity += 0.2
	} else if c.Temp <= -10 {
		content += " The cold bites."
		intensity += 0.2
	}
	if intensity > 1 {
		intensity = 1
	}
	return content, intensity
}

// Feed emits an environment event each time the fetched conditions change.
type Feed struct {
	client *Client

	mu   sync.Mutex
	last string
}

// NewFeed wraps client. A nil client yields a nil feed.
func NewFeed(client *Client) *Feed {
	if client == nil {
		return nil
	}
	return &Feed{client: client}
}

// Next fetches the weather and reports a new event when it differs from the
// last one emitted. Fetch errors are logged and produce no event.
func (f *Feed) Next(ctx context.Context, tick uint64) (stimulus.RawEvent, bool) {
	c, err := f.client.Fetch(ctx)
	if err != nil {
		slog.Warn("weather fetch failed", "error", err)
		return stimulus.RawEvent{}, false
	}

	content, intensity := Describe(c)
	f.mu.Lock()
	defer f.mu.Unlock()
	if content == f.last {
		return stimulus.RawEvent{}, false
	}
	f.last = content

	return stimulus.RawEvent{
		ID:      uuid.NewString(),
		Type:    stimulus.TypeEnvironment,
		Channel: stimulus.ChannelEnvironment,
		Content: content,
		Tick:    tick,
		Attributes: map[string]string{
			"intensity": strconv.FormatFloat(intensity, 'f', 2, 64),
			"source":    "weather",
		},
	}, true
}
