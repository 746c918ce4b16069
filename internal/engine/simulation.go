// Simulation ties the characters to the decision pipeline and runs them each tick.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/npc-cognition/internal/decision"
	"github.com/talgya/npc-cognition/internal/entropy"
	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/stimulus"
	"github.com/talgya/npc-cognition/internal/tools"
)

// characterNamespace scopes deterministic character IDs.
var characterNamespace = uuid.MustParse("5b0c7f3e-2f4a-4d89-9a51-0c6f1e7d2b44")

// Options tunes the simulation.
type Options struct {
	Seed             int64
	Concurrency      int           // characters deciding at once
	ActionTimeout    time.Duration // deadline handed to Tool.Execute
	HistoryRetention int           // decision records kept per character
	Clock            func() time.Time
}

// EnvironmentSource supplies scene-wide events, checked every sim-hour.
type EnvironmentSource interface {
	Next(ctx context.Context, tick uint64) (stimulus.RawEvent, bool)
}

// Simulation holds the characters and wires the pipeline together.
type Simulation struct {
	Interpreter decision.Interpreter
	Registry    *tools.Registry
	Director    *Director         // nil disables generated events
	Drift       *Drift            // nil disables ambient drift
	Weather     EnvironmentSource // nil disables weather events

	opts Options

	mu         sync.RWMutex
	characters []*Character
	index      map[string]*Character // ID → character
	byName     map[string]*Character

	lastTick atomic.Uint64
	log      *eventLog

	statsMu sync.Mutex
	stats   SimStats

	pendingMu sync.Mutex
	pending   []DecisionEntry
}

// SimStats tracks aggregate decision statistics.
type SimStats struct {
	Characters int            `json:"characters"`
	Decisions  int            `json:"decisions"`
	Failures   int            `json:"failures"`
	Malformed  int            `json:"malformed"`
	Fallbacks  int            `json:"fallbacks"`
	ToolCounts map[string]int `json:"tool_counts"`
}

// DecisionEntry is a recorded decision waiting to be persisted.
type DecisionEntry struct {
	CharacterID string
	Record      decision.DecisionRecord
}

// NewSimulation creates an empty simulation. Characters are added with Spawn.
func NewSimulation(opts Options, in decision.Interpreter, reg *tools.Registry) *Simulation {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Simulation{
		Interpreter: in,
		Registry:    reg,
		opts:        opts,
		index:       make(map[string]*Character),
		byName:      make(map[string]*Character),
		log:         newEventLog(),
		stats:       SimStats{ToolCounts: make(map[string]int)},
	}
}

// CharacterID returns the deterministic ID a character named name receives
// under seed.
func CharacterID(seed int64, name string) string {
	return uuid.NewSHA1(characterNamespace, []byte(fmt.Sprintf("%d/%s", seed, name))).String()
}

// Spawn adds a character built around p, with its own decision engine
// seeded from the simulation seed and the character ID.
func (s *Simulation) Spawn(p *personality.Profile, cfg decision.Config) (*Character, error) {
	if p == nil {
		return nil, fmt.Errorf("spawn: profile is required")
	}
	if p.ID == "" {
		p.ID = CharacterID(s.opts.Seed, p.Name)
	}
	rng := entropy.New(entropy.Derive(s.opts.Seed, p.ID))
	eng, err := decision.New(cfg, rng, decision.WithClock(s.opts.Clock))
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", p.Name, err)
	}
	c := NewCharacter(p, eng, decision.NewHistory(s.opts.HistoryRetention))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.index[c.ID]; dup {
		return nil, fmt.Errorf("spawn %s: duplicate character id %s", p.Name, c.ID)
	}
	if _, dup := s.byName[c.Name]; dup {
		return nil, fmt.Errorf("spawn: duplicate character name %q", c.Name)
	}
	s.characters = append(s.characters, c)
	s.index[c.ID] = c
	s.byName[c.Name] = c

	s.statsMu.Lock()
	s.stats.Characters = len(s.characters)
	s.statsMu.Unlock()

	slog.Info("character spawned", "id", c.ID, "name", c.Name, "quirks", p.QuirkNames())
	return c, nil
}

// Characters returns every character in spawn order.
func (s *Simulation) Characters() []*Character {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Character, len(s.characters))
	copy(out, s.characters)
	return out
}

// Character looks a character up by ID or by name.
func (s *Simulation) Character(key string) (*Character, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.index[key]; ok {
		return c, true
	}
	c, ok := s.byName[key]
	return c, ok
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	return s.lastTick.Load()
}

// SetTick positions the tick counter, for resuming a saved run.
func (s *Simulation) SetTick(t uint64) {
	s.lastTick.Store(t)
}

// Stats returns a copy of the aggregate statistics.
func (s *Simulation) Stats() SimStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	out := s.stats
	out.ToolCounts = make(map[string]int, len(s.stats.ToolCounts))
	for k, v := range s.stats.ToolCounts {
		out.ToolCounts[k] = v
	}
	return out
}

// InjectEvent queues a raw event for the character identified by key. The
// event is checked for required fields up front so callers learn about a
// malformed event immediately. Returns the event ID.
func (s *Simulation) InjectEvent(key string, ev stimulus.RawEvent) (string, error) {
	c, ok := s.Character(key)
	if !ok {
		return "", fmt.Errorf("character %q not found", key)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := stimulus.Validate(ev); err != nil {
		return "", err
	}
	if len(ev.Targets) == 0 {
		ev.Targets = []string{c.Name}
	}
	c.Enqueue(ev)

	slog.Info("event injected", "character", c.Name, "event", ev.ID, "type", ev.Type)
	s.EmitEvent(Event{
		Tick:        s.CurrentTick(),
		Description: fmt.Sprintf("%s perceives a %s event", c.Name, ev.Type),
		Category:    CategoryStimulus,
		Character:   c.ID,
		Meta:        map[string]any{"event_id": ev.ID, "actor": ev.Actor, "content": ev.Content},
	})
	return ev.ID, nil
}

// ApplyContext shifts one context dimension of a character. Trust needs the
// actor it is held toward.
func (s *Simulation) ApplyContext(key string, d personality.ContextDimension, actor string, delta float64) (personality.ContextModifiers, error) {
	c, ok := s.Character(key)
	if !ok {
		return personality.ContextModifiers{}, fmt.Errorf("character %q not found", key)
	}
	var err error
	if d == personality.Trust {
		err = c.ApplyTrustDelta(actor, delta)
	} else {
		err = c.ApplyContextDelta(d, delta)
	}
	if err != nil {
		return personality.ContextModifiers{}, err
	}
	ctx := c.Context()
	s.EmitEvent(Event{
		Tick:        s.CurrentTick(),
		Description: fmt.Sprintf("%s's %s shifts by %+.2f", c.Name, d, delta),
		Category:    CategoryContext,
		Character:   c.ID,
		Meta:        map[string]any{"dimension": d.String(), "actor": actor, "delta": delta},
	})
	return ctx, nil
}

// TakeDecisions returns and clears the decisions recorded since the last call.
func (s *Simulation) TakeDecisions() []DecisionEntry {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// RequeueDecisions puts entries taken by TakeDecisions back ahead of any
// recorded since, so a failed save loses nothing.
func (s *Simulation) RequeueDecisions(entries []DecisionEntry) {
	if len(entries) == 0 {
		return
	}
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending = append(append(make([]DecisionEntry, 0, len(entries)+len(s.pending)), entries...), s.pending...)
}

// TickMinute runs every tick: the director hands out events, then every
// character with something pending runs one decision cycle. Characters run
// concurrently up to the configured limit; outcomes are applied in spawn
// order so logs and feedback are reproducible.
func (s *Simulation) TickMinute(tick uint64) {
	s.lastTick.Store(tick)
	chars := s.Characters()

	if s.Director != nil {
		for _, c := range chars {
			if !s.Director.Roll() {
				continue
			}
			others := make([]string, 0, len(chars)-1)
			for _, o := range chars {
				if o != c {
					others = append(others, o.Name)
				}
			}
			c.Enqueue(s.Director.Next(tick, c.Name, others))
		}
	}

	tension := 0.0
	if s.Drift != nil {
		tension = s.Drift.Tension(tick)
	}

	outcomes := make([]cycleOutcome, len(chars))
	ran := make([]bool, len(chars))

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, c := range chars {
		g.Go(func() error {
			ctx := context.Background()
			if s.opts.ActionTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, s.opts.ActionTimeout)
				defer cancel()
			}
			outcomes[i], ran[i] = c.step(ctx, s.Interpreter, s.Registry, tick, tension)
			return nil
		})
	}
	g.Wait() // cycles report failure through their outcome, never through the group

	for i, c := range chars {
		if ran[i] {
			s.apply(tick, c, outcomes[i])
		}
	}
}

// apply records one cycle's outcome: stats, event log, persistence queue and
// the character's emotional reaction to what it perceived.
func (s *Simulation) apply(tick uint64, c *Character, out cycleOutcome) {
	if out.recorded {
		s.pendingMu.Lock()
		s.pending = append(s.pending, DecisionEntry{CharacterID: c.ID, Record: out.record})
		s.pendingMu.Unlock()
	}

	s.statsMu.Lock()
	switch {
	case errors.Is(out.err, stimulus.ErrMalformedEvent):
		s.stats.Malformed++
	case out.err != nil:
		s.stats.Failures++
	default:
		s.stats.Decisions++
		s.stats.ToolCounts[out.result.Tool]++
	}
	if out.recorded && fallbackSelected(out.record) {
		s.stats.Fallbacks++
	}
	s.statsMu.Unlock()

	switch {
	case errors.Is(out.err, stimulus.ErrMalformedEvent):
		slog.Warn("malformed event dropped", "character", c.Name, "event", out.event.ID, "error", out.err)
		s.EmitEvent(Event{
			Tick:        tick,
			Description: fmt.Sprintf("%s could not make sense of event %s", c.Name, out.event.ID),
			Category:    CategoryMalformed,
			Character:   c.ID,
			Meta:        map[string]any{"event_id": out.event.ID, "error": out.err.Error()},
		})
		return
	case out.err != nil:
		desc := fmt.Sprintf("%s could not decide how to respond", c.Name)
		if out.recorded {
			desc = fmt.Sprintf("%s tried to %s but failed", c.Name, out.record.Selected)
		}
		s.EmitEvent(Event{
			Tick:        tick,
			Description: desc,
			Category:    CategoryFailure,
			Character:   c.ID,
			Meta: map[string]any{
				"event_id": out.event.ID,
				"tool":     out.record.Selected,
				"error":    out.err.Error(),
			},
		})
	default:
		source := out.stimulus.Actor
		if source == "" {
			source = "the world"
		}
		s.EmitEvent(Event{
			Tick:        tick,
			Description: fmt.Sprintf("%s responds to %s from %s with %s", c.Name, out.stimulus.Schema, source, out.result.Tool),
			Category:    CategoryDecision,
			Character:   c.ID,
			Meta: map[string]any{
				"event_id":  out.event.ID,
				"seq":       out.record.Seq,
				"schema":    string(out.stimulus.Schema),
				"intent":    string(out.stimulus.Intent),
				"tool":      out.result.Tool,
				"kind":      out.result.Kind,
				"reference": out.result.Reference,
				"intensity": out.result.Intensity,
			},
		})
	}

	s.react(c, out.stimulus)
}

func fallbackSelected(rec decision.DecisionRecord) bool {
	for _, w := range rec.Weights {
		if w.Tool == rec.Selected {
			return w.Fallback
		}
	}
	return false
}

// Reaction magnitudes for perceived stimuli.
const (
	threatStress  = 0.15
	threatTrust   = -0.1
	slightMood    = -0.1
	slightTrust   = -0.05
	kindnessMood  = 0.1
	kindnessTrust = 0.1
)

// react moves the character's context after perceiving s. Everything goes
// through the profile's public delta calls.
func (s *Simulation) react(c *Character, st stimulus.InterpretedStimulus) {
	var stress, mood, trust float64
	switch st.Schema {
	case stimulus.SchemaThreat, stimulus.SchemaViolence:
		stress, trust = threatStress, threatTrust
	case stimulus.SchemaInsult, stimulus.SchemaDominanceAssertion, stimulus.SchemaBetrayal:
		mood, trust = slightMood, slightTrust
	case stimulus.SchemaPraise, stimulus.SchemaGift, stimulus.SchemaReassurance, stimulus.SchemaCompassion:
		mood, trust = kindnessMood, kindnessTrust
	default:
		return
	}

	if stress != 0 {
		if err := c.ApplyContextDelta(personality.Stress, stress); err != nil {
			slog.Error("stress reaction failed", "character", c.Name, "error", err)
		}
	}
	if mood != 0 {
		if err := c.ApplyContextDelta(personality.Mood, mood); err != nil {
			slog.Error("mood reaction failed", "character", c.Name, "error", err)
		}
	}
	if st.HasActor() {
		if err := c.ApplyTrustDelta(st.Actor, trust); err != nil {
			slog.Error("trust reaction failed", "character", c.Name, "error", err)
		}
	}
}

// TickHour runs every sim-hour: environment events, then ambient drift of
// mood and stress.
func (s *Simulation) TickHour(tick uint64) {
	if s.Weather != nil {
		s.broadcastEnvironment(tick)
	}
	if s.Drift == nil {
		return
	}
	for i, c := range s.Characters() {
		ctx := c.Context()
		dMood, dStress := s.Drift.Deltas(i, tick, ctx.Mood, ctx.Stress)
		if err := c.ApplyContextDelta(personality.Mood, dMood); err != nil {
			slog.Error("mood drift failed", "character", c.Name, "error", err)
		}
		if err := c.ApplyContextDelta(personality.Stress, dStress); err != nil {
			slog.Error("stress drift failed", "character", c.Name, "error", err)
		}
	}
}

func (s *Simulation) broadcastEnvironment(tick uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ev, ok := s.Weather.Next(ctx, tick)
	if !ok {
		return
	}
	for _, c := range s.Characters() {
		e := ev
		e.Targets = []string{c.ID}
		c.Enqueue(e)
	}
	s.EmitEvent(Event{
		Tick:        tick,
		Description: ev.Content,
		Category:    CategoryStimulus,
		Meta:        map[string]any{"event_id": ev.ID, "source": "environment"},
	})
}

// TickDay runs every sim-day: daily summary.
func (s *Simulation) TickDay(tick uint64) {
	st := s.Stats()
	slog.Info("daily summary",
		"sim_time", SimTime(tick),
		"characters", st.Characters,
		"decisions", st.Decisions,
		"failures", st.Failures,
		"malformed", st.Malformed,
		"fallbacks", st.Fallbacks,
	)
	s.EmitEvent(Event{
		Tick:        tick,
		Description: fmt.Sprintf("%s: %d decisions so far", SimTime(tick), st.Decisions),
		Category:    CategorySystem,
	})
}
