package personality

import (
	"fmt"
	"slices"

	"github.com/talgya/npc-cognition/internal/phi"
	"github.com/talgya/npc-cognition/internal/stimulus"
)

// Profile is a character's personality. The baseline trait vector is fixed at
// creation; context modifiers change over the character's lifetime through
// ApplyContextDelta and ApplyTrustDelta. A Profile belongs to one character
// and is not safe for concurrent mutation.
type Profile struct {
	ID          string
	Name        string
	Description string
	Traumas     []stimulus.TraumaTag

	core     TraitVector
	template *Template
	ctx      ContextModifiers
	quirks   []Quirk
}

// New creates a profile. Baseline values are clamped into the template's
// bounds; a nil template means DefaultTemplate.
func New(name string, core TraitVector, tmpl *Template, quirks ...Quirk) *Profile {
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}
	for i := range core {
		core[i] = tmpl.Bounds[i].Clamp(core[i])
	}
	qs := make([]Quirk, len(quirks))
	copy(qs, quirks)
	return &Profile{Name: name, core: core, template: tmpl, quirks: qs}
}

// Template returns the template the profile was built from.
func (p *Profile) Template() *Template { return p.template }

// Core returns the baseline trait vector.
func (p *Profile) Core() TraitVector { return p.core }

// Baseline returns the baseline value of one trait.
func (p *Profile) Baseline(t Trait) float64 {
	if t >= NumTraits {
		return 0
	}
	return p.core[t]
}

// EffectiveTrait returns the trait after context modifiers, ignoring trust.
func (p *Profile) EffectiveTrait(t Trait) float64 {
	return p.EffectiveTraitToward(t, "")
}

// EffectiveTraitToward returns the trait after context modifiers, including
// trust toward actor. The result always lies within the trait's bounds.
func (p *Profile) EffectiveTraitToward(t Trait, actor string) float64 {
	if t >= NumTraits {
		return 0
	}
	return p.template.Effective(t, p.core[t], p.ctx, actor)
}

// UnitTrait returns the effective trait toward actor rescaled from the
// trait's bounds onto [0, 1], where 0.5 is the midpoint.
func (p *Profile) UnitTrait(t Trait, actor string) float64 {
	if t >= NumTraits {
		return phi.Neutral
	}
	return p.template.Bounds[t].Unit(p.EffectiveTraitToward(t, actor))
}

// UnitTraits returns every trait as UnitTrait does.
func (p *Profile) UnitTraits(actor string) TraitVector {
	var v TraitVector
	for i := range v {
		v[i] = p.UnitTrait(Trait(i), actor)
	}
	return v
}

// Perceiver describes the profile to the interpreter: unit-scaled effective
// traits toward actor, keyed by name, and the profile's traumas.
func (p *Profile) Perceiver(actor string) stimulus.Perceiver {
	return stimulus.Perceiver{
		Traits:  p.UnitTraits(actor).Map(),
		Traumas: slices.Clone(p.Traumas),
	}
}

// EffectiveTraits returns every effective trait toward actor.
func (p *Profile) EffectiveTraits(actor string) TraitVector {
	var v TraitVector
	for i := range v {
		v[i] = p.EffectiveTraitToward(Trait(i), actor)
	}
	return v
}

// Context returns a copy of the current context modifiers.
func (p *Profile) Context() ContextModifiers { return p.ctx.Clone() }

// SetContext replaces the context modifiers, clamping every value.
func (p *Profile) SetContext(c ContextModifiers) {
	p.ctx = c.Clamped()
}

// ApplyContextDelta shifts a scalar context dimension, clamped to its range.
// Trust is per actor and goes through ApplyTrustDelta.
func (p *Profile) ApplyContextDelta(d ContextDimension, delta float64) error {
	if d >= Trust {
		return fmt.Errorf("apply context delta: %s is not a scalar dimension", d)
	}
	if !finite(delta) {
		return fmt.Errorf("apply context delta: %s delta must be finite", d)
	}
	p.ctx.set(d, p.ctx.Get(d)+delta)
	return nil
}

// ApplyTrustDelta shifts trust toward actor, clamped to [-1, 1].
func (p *Profile) ApplyTrustDelta(actor string, delta float64) error {
	if actor == "" {
		return fmt.Errorf("apply trust delta: actor is required")
	}
	if !finite(delta) {
		return fmt.Errorf("apply trust delta: delta must be finite")
	}
	if p.ctx.Trust == nil {
		p.ctx.Trust = make(map[string]float64)
	}
	p.ctx.Trust[actor] = contextRanges[Trust].Clamp(p.ctx.Trust[actor] + delta)
	return nil
}

// Quirks returns the profile's quirks in declaration order.
func (p *Profile) Quirks() []Quirk {
	out := make([]Quirk, len(p.quirks))
	copy(out, p.quirks)
	return out
}

// QuirkNames returns the names of the profile's quirks.
func (p *Profile) QuirkNames() []string {
	out := make([]string, len(p.quirks))
	for i, q := range p.quirks {
		out[i] = q.Name
	}
	return out
}

// TriggeredQuirks returns the quirks whose trigger holds for s, in
// declaration order. Trait conditions see effective values toward s.Actor,
// rescaled onto [0, 1].
func (p *Profile) TriggeredQuirks(s stimulus.InterpretedStimulus) []Quirk {
	eff := p.UnitTraits(s.Actor)
	var out []Quirk
	for _, q := range p.quirks {
		if q.Trigger.Matches(s, eff, p.ctx) {
			out = append(out, q)
		}
	}
	return out
}

// Snapshot is the persistable form of a profile: the baseline traits, the
// context modifiers and the quirk names. The template is configuration and
// is supplied again on restore.
type Snapshot struct {
	ID          string               `json:"id" yaml:"id"`
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	CoreTraits  TraitVector          `json:"core_traits" yaml:"core_traits"`
	Context     ContextModifiers     `json:"context" yaml:"context"`
	Quirks      []string             `json:"quirks" yaml:"quirks"`
	Traumas     []stimulus.TraumaTag `json:"traumas,omitempty" yaml:"traumas,omitempty"`
}

// Snapshot captures the profile.
func (p *Profile) Snapshot() Snapshot {
	return Snapshot{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CoreTraits:  p.core,
		Context:     p.ctx.Clone(),
		Quirks:      p.QuirkNames(),
		Traumas:     slices.Clone(p.Traumas),
	}
}

// Restore rebuilds a profile from a snapshot. Quirk names are resolved
// against lib; a nil lib means DefaultLibrary.
func Restore(s Snapshot, tmpl *Template, lib *Library) (*Profile, error) {
	if lib == nil {
		lib = DefaultLibrary()
	}
	quirks, err := lib.Resolve(s.Quirks)
	if err != nil {
		return nil, fmt.Errorf("restore profile %s: %w", s.ID, err)
	}
	p := New(s.Name, s.CoreTraits, tmpl, quirks...)
	p.ID = s.ID
	p.Description = s.Description
	p.Traumas = slices.Clone(s.Traumas)
	p.SetContext(s.Context)
	return p, nil
}
