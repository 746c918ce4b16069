package personality

import (
	"fmt"
	"slices"
	"sort"

	"github.com/talgya/npc-cognition/internal/entropy"
	"github.com/talgya/npc-cognition/internal/phi"
	"github.com/talgya/npc-cognition/internal/stimulus"
)

// Preset is a named baseline vector with default quirks.
type Preset struct {
	Name        string
	Description string
	Traits      map[Trait]float64 // unset traits are neutral
	Quirks      []string
	Traumas     []stimulus.TraumaTag
}

var presets = map[string]Preset{
	"aggressive": {
		Name:        "aggressive",
		Description: "Dominant and confrontational; tends to fight rather than flee",
		Traits: map[Trait]float64{
			Aggressiveness: 0.9, Dominance: 0.8, Neuroticism: 0.7,
			Agreeableness: 0.2, RiskTolerance: 0.7,
		},
		Quirks:  []string{"Quick to anger", "Enjoys intimidation"},
		Traumas: []stimulus.TraumaTag{stimulus.TraumaPowerlessness},
	},
	"cautious": {
		Name:        "cautious",
		Description: "Careful and risk-averse; prefers safety over confrontation",
		Traits: map[Trait]float64{
			Aggressiveness: 0.2, Neuroticism: 0.6, Openness: 0.3,
			Conscientiousness: 0.8, RiskTolerance: 0.2,
		},
		Quirks:  []string{"Always looks for escape routes", "Plans before acting"},
		Traumas: []stimulus.TraumaTag{stimulus.TraumaViolence},
	},
	"friendly": {
		Name:        "friendly",
		Description: "Warm and social; seeks connection and cooperation",
		Traits: map[Trait]float64{
			Extraversion: 0.8, Agreeableness: 0.9, Openness: 0.7,
			Conscientiousness: 0.6, Neuroticism: 0.3,
		},
		Quirks:  []string{"Smiles frequently", "Tries to diffuse tension"},
		Traumas: []stimulus.TraumaTag{stimulus.TraumaBetrayal},
	},
	"stoic": {
		Name:        "stoic",
		Description: "Unflappable and disciplined; rarely shows feeling",
		Traits: map[Trait]float64{
			Aggressiveness: 0.3, Extraversion: 0.3, Neuroticism: 0.1,
			Conscientiousness: 0.85, Dominance: 0.6,
		},
		Quirks: []string{"Plans before acting", "Stands guard"},
	},
	"volatile": {
		Name:        "volatile",
		Description: "Impulsive and easily rattled",
		Traits: map[Trait]float64{
			Aggressiveness: 0.7, Neuroticism: 0.9, Conscientiousness: 0.2,
			RiskTolerance: 0.8, Agreeableness: 0.35,
		},
		Quirks:  []string{"Quick to anger", "Laughs when nervous"},
		Traumas: []stimulus.TraumaTag{stimulus.TraumaRejection, stimulus.TraumaShame},
	},
}

// PresetNames returns the preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// FromPreset builds a profile from a named preset. Nil template and library
// fall back to the defaults.
func FromPreset(name string, tmpl *Template, lib *Library) (*Profile, error) {
	pr, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", name)
	}
	if lib == nil {
		lib = DefaultLibrary()
	}
	quirks, err := lib.Resolve(pr.Quirks)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", name, err)
	}
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}
	p := New(pr.Name, tmpl.FromUnit(Vector(pr.Traits)), tmpl, quirks...)
	p.Description = pr.Description
	p.Traumas = slices.Clone(pr.Traumas)
	return p, nil
}

// Random draws every trait uniformly within the template's bounds and picks
// one to MaxQuirks distinct quirks from lib. The same rng state yields the
// same profile.
func Random(name string, rng entropy.Source, tmpl *Template, lib *Library) *Profile {
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}
	if lib == nil {
		lib = DefaultLibrary()
	}

	var core TraitVector
	for i := range core {
		b := tmpl.Bounds[i]
		core[i] = b.Min + rng.Float64()*(b.Max-b.Min)
	}

	var quirks []Quirk
	names := lib.Names()
	if len(names) > 0 {
		n := 1 + int(rng.Float64()*float64(phi.MaxQuirks))
		if n > phi.MaxQuirks {
			n = phi.MaxQuirks
		}
		if n > len(names) {
			n = len(names)
		}
		// Partial Fisher-Yates: the first n slots end up a uniform sample.
		for i := 0; i < n; i++ {
			j := i + int(rng.Float64()*float64(len(names)-i))
			if j >= len(names) {
				j = len(names) - 1
			}
			names[i], names[j] = names[j], names[i]
			q, _ := lib.Get(names[i])
			quirks = append(quirks, q)
		}
	}

	p := New(name, core, tmpl, quirks...)
	p.Description = "Randomly generated personality for " + name
	return p
}
