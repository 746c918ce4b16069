package engine

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/npc-cognition/internal/decision"
	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/phi"
	"github.com/talgya/npc-cognition/internal/stimulus"
	"github.com/talgya/npc-cognition/internal/tools"
)

// maxPending caps a character's raw-event queue. The oldest events are
// dropped first.
const maxPending = 64

// Character is one simulated NPC: a personality, its own decision engine and
// history, and a FIFO of raw events waiting to be perceived. The mutex
// serialises decision cycles with context changes; History carries its own
// lock for observers.
type Character struct {
	ID       string
	Name     string
	Location string

	mu      sync.Mutex
	profile *personality.Profile
	engine  *decision.Engine
	history *decision.History
	queue   []stimulus.RawEvent
	dropped int
	last    *tools.ActionResult
}

// NewCharacter wraps a profile. The profile's ID becomes the character ID; a
// profile without one is given a fresh UUID.
func NewCharacter(p *personality.Profile, eng *decision.Engine, h *decision.History) *Character {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if h == nil {
		h = decision.NewHistory(0)
	}
	return &Character{
		ID:      p.ID,
		Name:    p.Name,
		profile: p,
		engine:  eng,
		history: h,
	}
}

// History returns the character's decision history.
func (c *Character) History() *decision.History { return c.history }

// State returns the decision engine's current state.
func (c *Character) State() decision.State { return c.engine.State() }

// Enqueue adds a raw event to the back of the queue.
func (c *Character) Enqueue(ev stimulus.RawEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, ev)
	if len(c.queue) > maxPending {
		c.dropped += len(c.queue) - maxPending
		c.queue = append([]stimulus.RawEvent(nil), c.queue[len(c.queue)-maxPending:]...)
	}
}

// Pending returns the number of queued events.
func (c *Character) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Snapshot captures the character's profile for saving.
func (c *Character) Snapshot() personality.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile.Snapshot()
}

// ApplyContextDelta shifts one scalar context dimension.
func (c *Character) ApplyContextDelta(d personality.ContextDimension, delta float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile.ApplyContextDelta(d, delta)
}

// ApplyTrustDelta shifts trust toward another entity.
func (c *Character) ApplyTrustDelta(actor string, delta float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile.ApplyTrustDelta(actor, delta)
}

// Context returns a copy of the current context modifiers.
func (c *Character) Context() personality.ContextModifiers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile.Context()
}

// cycleOutcome is what one tick's cycle produced for a character.
type cycleOutcome struct {
	event    stimulus.RawEvent
	stimulus stimulus.InterpretedStimulus
	result   tools.ActionResult
	record   decision.DecisionRecord
	recorded bool
	err      error
}

// step pops the next event and runs a full cycle on it. ok is false when the
// queue was empty.
func (c *Character) step(ctx context.Context, in decision.Interpreter, reg *tools.Registry, tick uint64, tension float64) (cycleOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return cycleOutcome{}, false
	}
	ev := c.queue[0]
	c.queue = c.queue[1:]
	if ev.Tick == 0 {
		ev.Tick = tick
	}

	lastSeq := uint64(0)
	if rec, ok := c.history.Last(); ok {
		lastSeq = rec.Seq
	}

	s, res, err := c.engine.Cycle(ctx, in, ev, c.worldContext(ev, tick, tension), c.profile, reg, c.history)
	out := cycleOutcome{event: ev, stimulus: s, result: res, err: err}
	if rec, ok := c.history.Last(); ok && rec.Seq > lastSeq {
		out.record = rec
		out.recorded = true
	}
	if err == nil {
		c.last = &res
	}
	return out, true
}

// worldContext builds the character's view of the scene. Trust doubles as
// sentiment toward known entities; recent decisions are what the character
// remembers. Caller holds c.mu.
func (c *Character) worldContext(ev stimulus.RawEvent, tick uint64, tension float64) stimulus.WorldContext {
	ctx := c.profile.Context()
	wc := stimulus.WorldContext{
		Tick:      tick,
		Location:  c.Location,
		Tension:   tension,
		Perceiver: c.profile.Perceiver(ev.Actor),
	}
	for _, rec := range c.history.Recent(phi.HistoryWindow) {
		wc.Perceiver.Memories = append(wc.Perceiver.Memories, stimulus.Memory{
			EventID: rec.Stimulus.EventID,
			Actor:   rec.Stimulus.Actor,
			Schema:  rec.Stimulus.Schema,
			Tick:    rec.Tick,
		})
	}
	if len(ctx.Trust) > 0 {
		wc.Relationships = make(map[string]stimulus.Relationship, len(ctx.Trust))
		for actor, trust := range ctx.Trust {
			wc.Relationships[actor] = stimulus.Relationship{
				Sentiment:  trust,
				Importance: ctx.Familiarity,
			}
		}
	}
	return wc
}

// CharacterView is the read-only summary served to observers.
type CharacterView struct {
	ID          string                       `json:"id"`
	Name        string                       `json:"name"`
	Description string                       `json:"description,omitempty"`
	Location    string                       `json:"location,omitempty"`
	State       string                       `json:"state"`
	Pending     int                          `json:"pending"`
	Dropped     int                          `json:"dropped,omitempty"`
	Baseline    personality.TraitVector      `json:"baseline"`
	Effective   personality.TraitVector      `json:"effective"`
	Context     personality.ContextModifiers `json:"context"`
	Quirks      []string                     `json:"quirks"`
	Traumas     []stimulus.TraumaTag         `json:"traumas,omitempty"`
	Decisions   int                          `json:"decisions"`
	LastAction  *tools.ActionResult          `json:"last_action,omitempty"`
}

// View summarises the character.
func (c *Character) View() CharacterView {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := CharacterView{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.profile.Description,
		Location:    c.Location,
		State:       c.engine.State().String(),
		Pending:     len(c.queue),
		Dropped:     c.dropped,
		Baseline:    c.profile.Core(),
		Effective:   c.profile.EffectiveTraits(""),
		Context:     c.profile.Context(),
		Quirks:      c.profile.QuirkNames(),
		Traumas:     slices.Clone(c.profile.Traumas),
		Decisions:   c.history.Len(),
	}
	if c.last != nil {
		last := *c.last
		v.LastAction = &last
	}
	return v
}
