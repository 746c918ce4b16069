package personality

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/npc-cognition/internal/phi"
	"github.com/talgya/npc-cognition/internal/stimulus"
)

// EffectKind selects how an effect combines with a tool's weight.
type EffectKind uint8

const (
	Additive EffectKind = iota
	Multiplicative
)

func (k EffectKind) String() string {
	if k == Multiplicative {
		return "multiply"
	}
	return "add"
}

// Effect adjusts the weight of one named tool.
type Effect struct {
	Tool  string     `json:"tool"`
	Kind  EffectKind `json:"kind"`
	Value float64    `json:"value"`
}

// Add is an additive bonus (or penalty when negative) on a tool.
func Add(tool string, v float64) Effect { return Effect{Tool: tool, Kind: Additive, Value: v} }

// Mul is a multiplicative factor on a tool.
func Mul(tool string, v float64) Effect { return Effect{Tool: tool, Kind: Multiplicative, Value: v} }

// Trigger is a conjunction of conditions over a stimulus and the character's
// effective traits. The zero Trigger always holds.
type Trigger struct {
	Schemas       []stimulus.Schema
	Intents       []stimulus.Intent
	Types         []stimulus.EventType
	HasActor      *bool
	SalienceAbove *float64 // mean salience
	SalienceBelow *float64
	StressAbove   *float64
	TraitsAbove   map[Trait]float64 // effective value toward the stimulus actor, on [0, 1]
	TraitsBelow   map[Trait]float64
}

// Matches evaluates the trigger.
func (tr Trigger) Matches(s stimulus.InterpretedStimulus, eff TraitVector, ctx ContextModifiers) bool {
	if len(tr.Schemas) > 0 && !contains(tr.Schemas, s.Schema) {
		return false
	}
	if len(tr.Intents) > 0 && !contains(tr.Intents, s.Intent) {
		return false
	}
	if len(tr.Types) > 0 && !contains(tr.Types, s.Type) {
		return false
	}
	if tr.HasActor != nil && *tr.HasActor != s.HasActor() {
		return false
	}
	if tr.SalienceAbove != nil && s.Salience.Mean() <= *tr.SalienceAbove {
		return false
	}
	if tr.SalienceBelow != nil && s.Salience.Mean() >= *tr.SalienceBelow {
		return false
	}
	if tr.StressAbove != nil && ctx.Stress <= *tr.StressAbove {
		return false
	}
	for t, min := range tr.TraitsAbove {
		if eff[t] <= min {
			return false
		}
	}
	for t, max := range tr.TraitsBelow {
		if eff[t] >= max {
			return false
		}
	}
	return true
}

// Quirk is a conditional, character-specific weight modifier.
type Quirk struct {
	Name        string
	Description string
	Trigger     Trigger
	Effects     []Effect
}

// EffectsOn returns the quirk's effects naming tool.
func (q Quirk) EffectsOn(tool string) []Effect {
	var out []Effect
	for _, e := range q.Effects {
		if e.Tool == tool {
			out = append(out, e)
		}
	}
	return out
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// QuirkSpec is the YAML form of a quirk.
type QuirkSpec struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	When        TriggerSpec  `yaml:"when,omitempty"`
	Effects     []EffectSpec `yaml:"effects"`
}

// TriggerSpec is the YAML form of a Trigger; traits are named.
type TriggerSpec struct {
	Schemas       []stimulus.Schema    `yaml:"schemas,omitempty"`
	Intents       []stimulus.Intent    `yaml:"intents,omitempty"`
	Types         []stimulus.EventType `yaml:"types,omitempty"`
	HasActor      *bool                `yaml:"has_actor,omitempty"`
	SalienceAbove *float64             `yaml:"salience_above,omitempty"`
	SalienceBelow *float64             `yaml:"salience_below,omitempty"`
	StressAbove   *float64             `yaml:"stress_above,omitempty"`
	TraitsAbove   map[string]float64   `yaml:"traits_above,omitempty"`
	TraitsBelow   map[string]float64   `yaml:"traits_below,omitempty"`
}

// EffectSpec sets exactly one of Add or Multiply.
type EffectSpec struct {
	Tool     string   `yaml:"tool"`
	Add      *float64 `yaml:"add,omitempty"`
	Multiply *float64 `yaml:"multiply,omitempty"`
}

// Compile validates the declaration and builds a Quirk.
func (s QuirkSpec) Compile() (Quirk, error) {
	if s.Name == "" {
		return Quirk{}, fmt.Errorf("quirk without name")
	}
	above, err := namedTraits(s.When.TraitsAbove)
	if err != nil {
		return Quirk{}, fmt.Errorf("quirk %q: %w", s.Name, err)
	}
	below, err := namedTraits(s.When.TraitsBelow)
	if err != nil {
		return Quirk{}, fmt.Errorf("quirk %q: %w", s.Name, err)
	}
	if len(s.Effects) == 0 {
		return Quirk{}, fmt.Errorf("quirk %q: at least one effect is required", s.Name)
	}

	q := Quirk{
		Name:        s.Name,
		Description: s.Description,
		Trigger: Trigger{
			Schemas:       s.When.Schemas,
			Intents:       s.When.Intents,
			Types:         s.When.Types,
			HasActor:      s.When.HasActor,
			SalienceAbove: s.When.SalienceAbove,
			SalienceBelow: s.When.SalienceBelow,
			StressAbove:   s.When.StressAbove,
			TraitsAbove:   above,
			TraitsBelow:   below,
		},
	}
	for _, e := range s.Effects {
		if e.Tool == "" {
			return Quirk{}, fmt.Errorf("quirk %q: effect without tool", s.Name)
		}
		switch {
		case e.Add != nil && e.Multiply == nil && finite(*e.Add):
			q.Effects = append(q.Effects, Add(e.Tool, *e.Add))
		case e.Multiply != nil && e.Add == nil && finite(*e.Multiply) && *e.Multiply >= 0:
			q.Effects = append(q.Effects, Mul(e.Tool, *e.Multiply))
		default:
			return Quirk{}, fmt.Errorf("quirk %q: effect on %s needs exactly one finite add or non-negative multiply", s.Name, e.Tool)
		}
	}
	return q, nil
}

func namedTraits(m map[string]float64) (map[Trait]float64, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[Trait]float64, len(m))
	for name, v := range m {
		t, err := ParseTrait(name)
		if err != nil {
			return nil, err
		}
		out[t] = v
	}
	return out, nil
}

// ParseQuirks reads a YAML list of quirks (a top-level "quirks:" list).
func ParseQuirks(data []byte) ([]Quirk, error) {
	var f struct {
		Quirks []QuirkSpec `yaml:"quirks"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse quirks: %w", err)
	}
	return CompileQuirks(f.Quirks)
}

// CompileQuirks compiles specs in order.
func CompileQuirks(specs []QuirkSpec) ([]Quirk, error) {
	out := make([]Quirk, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		q, err := s.Compile()
		if err != nil {
			return nil, err
		}
		if seen[q.Name] {
			return nil, fmt.Errorf("duplicate quirk %q", q.Name)
		}
		seen[q.Name] = true
		out = append(out, q)
	}
	return out, nil
}

// LoadQuirks reads a YAML quirk file from disk.
func LoadQuirks(path string) ([]Quirk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quirks file: %w", err)
	}
	return ParseQuirks(data)
}

// Library is the named set of quirks characters can be built from. It is
// populated at setup and read-only afterwards.
type Library struct {
	order  []string
	byName map[string]Quirk
}

// NewLibrary creates a library; duplicate names are rejected.
func NewLibrary(quirks ...Quirk) (*Library, error) {
	l := &Library{byName: make(map[string]Quirk, len(quirks))}
	for _, q := range quirks {
		if err := l.Add(q); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Add registers a quirk.
func (l *Library) Add(q Quirk) error {
	if q.Name == "" {
		return fmt.Errorf("quirk without name")
	}
	if _, dup := l.byName[q.Name]; dup {
		return fmt.Errorf("duplicate quirk %q", q.Name)
	}
	l.order = append(l.order, q.Name)
	l.byName[q.Name] = q
	return nil
}

// Get looks up a quirk by name.
func (l *Library) Get(name string) (Quirk, bool) {
	q, ok := l.byName[name]
	return q, ok
}

// Names returns quirk names in registration order.
func (l *Library) Names() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Len returns the number of quirks.
func (l *Library) Len() int { return len(l.order) }

// Resolve maps names to quirks, failing on the first unknown name.
func (l *Library) Resolve(names []string) ([]Quirk, error) {
	out := make([]Quirk, 0, len(names))
	for _, n := range names {
		q, ok := l.byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown quirk %q", n)
		}
		out = append(out, q)
	}
	return out, nil
}

func ptr[T any](v T) *T { return &v }

// Tool names referenced by the built-in quirks. They match the reference
// toolbox; quirks naming unregistered tools simply have no effect.
const (
	toolDialogue  = "dialogue_response"
	toolFlee      = "flee"
	toolAttack    = "attack"
	toolDefend    = "defend"
	toolThreaten  = "threaten"
	toolGreet     = "greet"
	toolOfferHelp = "offer_help"
	toolEmote     = "express_emotion"
	toolScan      = "scan_for_threats"
	toolHide      = "hide"
	toolUseItem   = "use_item"
)

var (
	hostileSchemas = []stimulus.Schema{stimulus.SchemaInsult, stimulus.SchemaThreat, stimulus.SchemaDominanceAssertion}
	dangerSchemas  = []stimulus.Schema{stimulus.SchemaThreat, stimulus.SchemaViolence}
)

// DefaultQuirks returns the built-in quirk set.
func DefaultQuirks() []Quirk {
	return []Quirk{
		{
			Name:        "Quick to anger",
			Description: "Insults and posturing go straight to the fists",
			Trigger:     Trigger{Schemas: []stimulus.Schema{stimulus.SchemaInsult, stimulus.SchemaDominanceAssertion}},
			Effects:     []Effect{Mul(toolAttack, phi.Being), Add(toolThreaten, phi.Psyche)},
		},
		{
			Name:        "Enjoys intimidation",
			Description: "Leans on anyone weaker when feeling in charge",
			Trigger:     Trigger{HasActor: ptr(true), TraitsAbove: map[Trait]float64{Dominance: 0.6}},
			Effects:     []Effect{Mul(toolThreaten, phi.Being)},
		},
		{
			Name:    "Always looks for escape routes",
			Trigger: Trigger{Schemas: dangerSchemas},
			Effects: []Effect{Add(toolFlee, phi.Psyche), Add(toolHide, phi.Agnosis)},
		},
		{
			Name:        "Plans before acting",
			Description: "Calm situations are studied before anything is done",
			Trigger:     Trigger{SalienceBelow: ptr(phi.Neutral)},
			Effects:     []Effect{Add(toolScan, phi.Agnosis), Mul(toolAttack, phi.Matter)},
		},
		{
			Name:    "Smiles frequently",
			Trigger: Trigger{HasActor: ptr(true)},
			Effects: []Effect{Mul(toolGreet, phi.Being)},
		},
		{
			Name:    "Tries to diffuse tension",
			Trigger: Trigger{Schemas: hostileSchemas},
			Effects: []Effect{Mul(toolDialogue, phi.Being), Mul(toolAttack, phi.Matter)},
		},
		{
			Name:    "Laughs when nervous",
			Trigger: Trigger{TraitsAbove: map[Trait]float64{Neuroticism: 0.6}},
			Effects: []Effect{Add(toolEmote, phi.Psyche)},
		},
		{
			Name:    "Avoids eye contact",
			Trigger: Trigger{HasActor: ptr(true), TraitsBelow: map[Trait]float64{Extraversion: 0.4}},
			Effects: []Effect{Mul(toolGreet, phi.Matter), Mul(toolDialogue, phi.Matter)},
		},
		{
			Name:    "Speaks in metaphors",
			Trigger: Trigger{Types: []stimulus.EventType{stimulus.TypeDialogue}},
			Effects: []Effect{Add(toolDialogue, phi.Agnosis)},
		},
		{
			Name:    "Fidgets when lying",
			Trigger: Trigger{Schemas: []stimulus.Schema{stimulus.SchemaDeception}},
			Effects: []Effect{Add(toolEmote, phi.Psyche)},
		},
		{
			Name:    "Easily distracted by shiny objects",
			Trigger: Trigger{Schemas: []stimulus.Schema{stimulus.SchemaGift, stimulus.SchemaMystery}},
			Effects: []Effect{Mul(toolUseItem, phi.Being), Mul(toolScan, phi.Matter)},
		},
		{
			Name:    "Cannot resist a challenge",
			Trigger: Trigger{Schemas: hostileSchemas},
			Effects: []Effect{Add(toolAttack, phi.Psyche), Mul(toolFlee, phi.Matter)},
		},
		{
			Name:    "Always looking over shoulder",
			Effects: []Effect{Mul(toolScan, phi.Being)},
		},
		{
			Name:    "Hums when thinking",
			Trigger: Trigger{Schemas: []stimulus.Schema{stimulus.SchemaMystery, stimulus.SchemaEnvironmentalChange}},
			Effects: []Effect{Add(toolEmote, phi.Agnosis)},
		},
		{
			Name:    "Refuses to admit mistakes",
			Trigger: Trigger{Schemas: []stimulus.Schema{stimulus.SchemaBetrayal, stimulus.SchemaInsult}},
			Effects: []Effect{Mul(toolDialogue, phi.Being), Mul(toolOfferHelp, phi.Matter)},
		},
		{
			Name:    "Collects trophies from encounters",
			Trigger: Trigger{Schemas: []stimulus.Schema{stimulus.SchemaViolence}},
			Effects: []Effect{Add(toolAttack, phi.Agnosis), Add(toolUseItem, phi.Agnosis)},
		},
		{
			Name:    "Stands guard",
			Trigger: Trigger{Schemas: dangerSchemas, TraitsAbove: map[Trait]float64{Conscientiousness: 0.6}},
			Effects: []Effect{Mul(toolDefend, phi.Being)},
		},
	}
}

// DefaultLibrary returns a library of the built-in quirks.
func DefaultLibrary() *Library {
	l, err := NewLibrary(DefaultQuirks()...)
	if err != nil {
		panic(fmt.Sprintf("personality: default quirks: %v", err))
	}
	return l
}
