package decision

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/talgya/npc-cognition/internal/entropy"
	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/stimulus"
	"github.com/talgya/npc-cognition/internal/tools"
)

// Interpreter turns raw events into stimuli. *stimulus.Interpreter satisfies it.
type Interpreter interface {
	Interpret(ev stimulus.RawEvent, wc stimulus.WorldContext) (stimulus.InterpretedStimulus, error)
}

// Engine runs decision cycles for one character. Cycles must not overlap;
// the host serialises them. State may be read from any goroutine.
type Engine struct {
	cfg   Config
	rng   entropy.Source
	now   func() time.Time
	state atomic.Uint32
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine drawing from rng.
func New(cfg Config, rng entropy.Source, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("decision engine: random source is required")
	}
	e := &Engine{cfg: cfg, rng: rng, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Config returns the engine's tuning.
func (e *Engine) Config() Config { return e.cfg }

// State returns the current cycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) { e.state.Store(uint32(s)) }

// Cycle interprets a raw event and decides on it. Interpretation errors are
// returned without touching history.
func (e *Engine) Cycle(ctx context.Context, in Interpreter, ev stimulus.RawEvent, wc stimulus.WorldContext,
	p *personality.Profile, reg *tools.Registry, h *History) (stimulus.InterpretedStimulus, tools.ActionResult, error) {

	e.setState(StateInterpreting)
	s, err := in.Interpret(ev, wc)
	if err != nil {
		e.setState(StateIdle)
		decisionErrors.WithLabelValues("malformed_event").Inc()
		return stimulus.InterpretedStimulus{}, tools.ActionResult{}, fmt.Errorf("interpret %s: %w", ev.ID, err)
	}
	res, err := e.Decide(ctx, s, p, reg, h)
	return s, res, err
}

// Weigh computes every tool's final weight without selecting or executing.
func (e *Engine) Weigh(s stimulus.InterpretedStimulus, p *personality.Profile, reg *tools.Registry, h *History) ([]ToolWeight, error) {
	_, weights, err := e.weigh(s, p, reg, h)
	return weights, err
}

func (e *Engine) weigh(s stimulus.InterpretedStimulus, p *personality.Profile, reg *tools.Registry, h *History) ([]tools.Tool, []ToolWeight, error) {
	if p == nil || reg == nil {
		return nil, nil, fmt.Errorf("decide: profile and registry are required")
	}
	all := reg.All()
	if len(all) == 0 {
		return nil, nil, &EmptyRegistryError{DefaultTool: e.cfg.DefaultTool}
	}

	triggered := p.TriggeredQuirks(s)
	var counts map[string]int
	var seen int
	if h != nil {
		counts, seen = h.SelectionCounts(e.cfg.Window)
	}

	weights := make([]ToolWeight, len(all))
	total := 0.0
	for i, t := range all {
		name := t.Name()
		tw := ToolWeight{Tool: name, Personality: 1, Damping: 1}

		base := t.BaseWeight(s, p)
		if !finite(base) || base < 0 {
			slog.Warn("tool returned invalid base weight", "tool", name, "weight", base)
			invalidBaseWeights.WithLabelValues(name).Inc()
			base = 0
		}
		tw.Base = base

		for _, sens := range e.cfg.SensitivitiesFor(t) {
			// [-1, 1] around the midpoint of the trait's bounds
			dev := 2*p.UnitTrait(sens.Trait, s.Actor) - 1
			tw.Personality *= math.Max(0, 1+sens.Weight*dev)
		}
		w := base * tw.Personality

		mul, add := 1.0, 0.0
		for _, q := range triggered {
			for _, eff := range q.EffectsOn(name) {
				if eff.Kind == personality.Multiplicative {
					mul *= eff.Value
				} else {
					add += eff.Value
				}
			}
		}
		w = w*mul + add
		tw.Quirked = w

		if seen > 0 {
			freq := float64(counts[name]) / float64(seen)
			tw.Damping = math.Max(e.cfg.DampingFloor, 1-e.cfg.DampingStrength*freq)
		}
		w *= tw.Damping

		if !finite(w) || w < 0 {
			w = 0
		}
		tw.Final = w
		total += w
		weights[i] = tw
	}

	if total == 0 {
		idx := -1
		for i, t := range all {
			if t.Name() == e.cfg.DefaultTool {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, &EmptyRegistryError{DefaultTool: e.cfg.DefaultTool, Registered: len(all)}
		}
		weights[idx].Final = 1
		weights[idx].Fallback = true
	}
	return all, weights, nil
}

// sample draws an index proportionally to Final, in registration order.
func (e *Engine) sample(weights []ToolWeight) int {
	total := 0.0
	last := -1
	for i, w := range weights {
		total += w.Final
		if w.Final > 0 {
			last = i
		}
	}
	r := e.rng.Float64() * total
	cum := 0.0
	for i, w := range weights {
		if w.Final <= 0 {
			continue
		}
		cum += w.Final
		if r < cum {
			return i
		}
	}
	return last
}

// Decide weighs every registered tool, draws one, executes it and records
// the attempt. Execution failures are recorded as failed and returned as
// *ToolExecutionError. The engine is back in StateIdle when Decide returns.
func (e *Engine) Decide(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile,
	reg *tools.Registry, h *History) (tools.ActionResult, error) {

	start := time.Now()
	defer func() {
		e.setState(StateIdle)
		decisionDuration.Observe(time.Since(start).Seconds())
	}()

	e.setState(StateWeighing)
	all, weights, err := e.weigh(s, p, reg, h)
	if err != nil {
		decisionErrors.WithLabelValues("weighing").Inc()
		return tools.ActionResult{}, err
	}

	e.setState(StateSelecting)
	idx := e.sample(weights)
	tool := all[idx]
	if weights[idx].Fallback {
		fallbackSelections.Inc()
	}

	e.setState(StateExecuting)
	res, execErr := e.execute(ctx, tool, s, p)

	rec := DecisionRecord{
		Tick:      s.Tick,
		Timestamp: e.now(),
		Stimulus:  s,
		Weights:   weights,
		Selected:  tool.Name(),
		Result:    res,
	}
	result := "ok"
	if execErr != nil {
		rec.Failed = true
		rec.Error = execErr.Error()
		result = "failed"
		decisionErrors.WithLabelValues("tool_execution").Inc()
		slog.Warn("tool execution failed", "tool", tool.Name(), "event", s.EventID, "error", execErr)
	}
	if h != nil {
		rec = h.Append(rec)
	}
	e.setState(StateRecorded)
	decisionsTotal.WithLabelValues(tool.Name(), result).Inc()

	slog.Debug("decision recorded", "seq", rec.Seq, "event", s.EventID, "schema", s.Schema,
		"selected", tool.Name(), "weight", weights[idx].Final, "failed", rec.Failed)
	return res, execErr
}

func (e *Engine) execute(ctx context.Context, t tools.Tool, s stimulus.InterpretedStimulus, p *personality.Profile) (res tools.ActionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = tools.ActionResult{}
			err = &ToolExecutionError{Tool: t.Name(), Err: fmt.Errorf("%v", r), Panicked: true}
		}
	}()

	res, err = t.Execute(ctx, s, p)
	if err == nil {
		err = ctx.Err() // the host's deadline passed while the tool ran
	}
	if err != nil {
		return tools.ActionResult{}, &ToolExecutionError{Tool: t.Name(), Err: err}
	}
	if res.Tool == "" {
		res.Tool = t.Name()
	}
	return res, nil
}
