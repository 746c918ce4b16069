package stimulus

import (
	"fmt"
	"slices"

	"github.com/talgya/npc-cognition/internal/phi"
)

// TraumaTag names a wound a character carries. Stimuli whose schema touches
// it hit harder.
type TraumaTag string

const (
	TraumaAbandonment   TraumaTag = "abandonment"
	TraumaShame         TraumaTag = "shame"
	TraumaBetrayal      TraumaTag = "betrayal"
	TraumaViolence      TraumaTag = "violence"
	TraumaPowerlessness TraumaTag = "powerlessness"
	TraumaFailure       TraumaTag = "failure"
	TraumaNeglect       TraumaTag = "neglect"
	TraumaRejection     TraumaTag = "rejection"
)

var traumaTags = []TraumaTag{
	TraumaAbandonment, TraumaShame, TraumaBetrayal, TraumaViolence,
	TraumaPowerlessness, TraumaFailure, TraumaNeglect, TraumaRejection,
}

// ParseTraumaTag maps a name to a known trauma tag.
func ParseTraumaTag(name string) (TraumaTag, error) {
	t := TraumaTag(name)
	if !slices.Contains(traumaTags, t) {
		return "", fmt.Errorf("unknown trauma %q", name)
	}
	return t, nil
}

// traumaSchemas maps each schema to the traumas it can reopen.
var traumaSchemas = map[Schema][]TraumaTag{
	SchemaAbandonment:        {TraumaAbandonment, TraumaNeglect, TraumaRejection},
	SchemaBetrayal:           {TraumaBetrayal},
	SchemaDeception:          {TraumaBetrayal},
	SchemaInsult:             {TraumaShame, TraumaRejection},
	SchemaDisgust:            {TraumaShame, TraumaRejection},
	SchemaThreat:             {TraumaViolence, TraumaPowerlessness},
	SchemaViolence:           {TraumaViolence},
	SchemaDominanceAssertion: {TraumaPowerlessness},
	SchemaInsecurity:         {TraumaFailure},
}

// TraumasFor returns the traumas a schema can trigger.
func TraumasFor(schema Schema) []TraumaTag {
	return slices.Clone(traumaSchemas[schema])
}

// Memory is one earlier stimulus the perceiver remembers.
type Memory struct {
	EventID string `json:"event_id"`
	Actor   string `json:"actor,omitempty"`
	Schema  Schema `json:"schema"`
	Tick    uint64 `json:"tick"`
}

// Perceiver is what the interpreting character brings to an event.
type Perceiver struct {
	// Traits are effective trait values on [0, 1], keyed by trait name.
	Traits   map[string]float64 `json:"traits,omitempty"`
	Traumas  []TraumaTag        `json:"traumas,omitempty"`
	Memories []Memory           `json:"memories,omitempty"` // oldest first
}

// Trait returns a trait value and whether the perceiver declared it.
func (p Perceiver) Trait(name string) (float64, bool) {
	v, ok := p.Traits[name]
	return v, ok
}

// Modifier adjusts a classified stimulus for the perceiver. Modify must
// depend only on its arguments.
type Modifier interface {
	Name() string
	Modify(s InterpretedStimulus, ev RawEvent, wc WorldContext) InterpretedStimulus
}

// DefaultModifiers returns the personality modifier followed by the memory
// modifier.
func DefaultModifiers() []Modifier {
	return []Modifier{NewPersonalityModifier(), NewMemoryModifier()}
}

// TraitLens scales one salience dimension by how far a trait sits from the
// midpoint: the factor is 1 + Gain*(2*trait-1).
type TraitLens struct {
	Trait     string
	Dimension Dimension
	Gain      float64
}

// PersonalityModifier colours salience through the perceiver's traits.
type PersonalityModifier struct {
	Lenses []TraitLens
}

// NewPersonalityModifier returns the standard lenses: volatile characters
// feel more, agreeable ones care more who is speaking, and the
// conscientious weigh right and wrong.
func NewPersonalityModifier() *PersonalityModifier {
	return &PersonalityModifier{Lenses: []TraitLens{
		{Trait: "neuroticism", Dimension: DimEmotional, Gain: phi.Neutral},
		{Trait: "agreeableness", Dimension: DimRelationship, Gain: phi.Agnosis},
		{Trait: "conscientiousness", Dimension: DimMoral, Gain: phi.Agnosis},
	}}
}

func (m *PersonalityModifier) Name() string { return "personality" }

func (m *PersonalityModifier) Modify(s InterpretedStimulus, _ RawEvent, wc WorldContext) InterpretedStimulus {
	for _, l := range m.Lenses {
		v, ok := wc.Perceiver.Trait(l.Trait)
		if !ok {
			continue
		}
		factor := max(0, 1+l.Gain*(2*clamp01(v)-1))
		s.Salience = s.Salience.Adjusted(l.Dimension, func(x float64) float64 { return x * factor })
	}
	return s
}

// MemoryModifier links a stimulus to what the perceiver remembers. Traumas
// the schema touches are listed and raise emotional and existential
// salience; earlier events from the same actor are referenced and raise
// relationship salience.
type MemoryModifier struct {
	TraumaBoost float64 // added per triggered trauma
	RecallBoost float64 // added per referenced memory
	MaxRefs     int
}

// NewMemoryModifier returns the standard memory modifier.
func NewMemoryModifier() *MemoryModifier {
	return &MemoryModifier{TraumaBoost: phi.Agnosis, RecallBoost: 0.05, MaxRefs: 5}
}

func (m *MemoryModifier) Name() string { return "memory" }

func (m *MemoryModifier) Modify(s InterpretedStimulus, ev RawEvent, wc WorldContext) InterpretedStimulus {
	for _, t := range traumaSchemas[s.Schema] {
		if slices.Contains(wc.Perceiver.Traumas, t) && !slices.Contains(s.TraumaTriggers, t) {
			s.TraumaTriggers = append(s.TraumaTriggers, t)
		}
	}
	if n := float64(len(s.TraumaTriggers)); n > 0 {
		boost := func(x float64) float64 { return x + n*m.TraumaBoost }
		s.Salience = s.Salience.Adjusted(DimEmotional, boost).Adjusted(DimExistential, boost)
	}

	if ev.Actor == "" {
		return s
	}
	// newest first
	for i := len(wc.Perceiver.Memories) - 1; i >= 0 && len(s.MemoryRefs) < m.MaxRefs; i-- {
		mem := wc.Perceiver.Memories[i]
		if mem.Actor == ev.Actor && mem.EventID != ev.ID {
			s.MemoryRefs = append(s.MemoryRefs, mem.EventID)
		}
	}
	if n := float64(len(s.MemoryRefs)); n > 0 {
		s.Salience = s.Salience.Adjusted(DimRelationship, func(x float64) float64 { return x + n*m.RecallBoost })
	}
	return s
}
