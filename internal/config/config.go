// Package config loads the YAML configuration and builds the pipeline
// components from it: interpreter, personality template, quirk library,
// tool registry and decision tuning. Everything has a default in code; a
// file only needs the keys it changes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/npc-cognition/internal/decision"
	"github.com/talgya/npc-cognition/internal/entropy"
	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/phi"
	"github.com/talgya/npc-cognition/internal/stimulus"
	"github.com/talgya/npc-cognition/internal/tools"
)

// Config is the full configuration surface.
type Config struct {
	Seed        int64  `yaml:"seed"` // 0 draws a seed at startup
	DefaultTool string `yaml:"default_tool"`

	TraitBounds          map[string]personality.Bounds `yaml:"trait_bounds,omitempty"`
	Sensitivities        map[string]map[string]float64 `yaml:"sensitivities,omitempty"`         // tool -> trait -> weight
	ContextSensitivities map[string]map[string]float64 `yaml:"context_sensitivities,omitempty"` // trait -> context -> coefficient

	History  HistoryConfig  `yaml:"history"`
	Salience SalienceConfig `yaml:"salience"`

	Rules  []stimulus.RuleSpec     `yaml:"rules,omitempty"`  // tried before the built-in table
	Quirks []personality.QuirkSpec `yaml:"quirks,omitempty"` // replace built-ins of the same name

	Simulation SimulationConfig `yaml:"simulation"`
}

// HistoryConfig sizes decision history and tunes damping.
type HistoryConfig struct {
	Retention       int     `yaml:"retention"` // records kept per character
	Window          int     `yaml:"window"`    // records damping looks at
	DampingStrength float64 `yaml:"damping_strength"`
	DampingFloor    float64 `yaml:"damping_floor"`
}

// SalienceConfig selects and orders the scored dimensions. Empty keeps all.
type SalienceConfig struct {
	Dimensions []stimulus.Dimension `yaml:"dimensions,omitempty"`
}

// SimulationConfig drives the reference host.
type SimulationConfig struct {
	TickInterval  time.Duration   `yaml:"tick_interval"`
	EventRate     float64         `yaml:"event_rate"` // chance per character per tick of a directed event
	Concurrency   int             `yaml:"concurrency"`
	ActionTimeout time.Duration   `yaml:"action_timeout"`
	SaveEvery     uint64          `yaml:"save_every"` // ticks between saves
	DBPath        string          `yaml:"db_path"`
	APIPort       int             `yaml:"api_port"`
	Characters    []CharacterSpec `yaml:"characters"`
}

// CharacterSpec describes one character to spawn. Preset and Random are
// exclusive; with neither, traits start neutral.
type CharacterSpec struct {
	Name   string             `yaml:"name"`
	Preset string             `yaml:"preset,omitempty"`
	Random bool               `yaml:"random,omitempty"`
	Traits map[string]float64 `yaml:"traits,omitempty"` // overrides on top of preset or random
	Quirks []string           `yaml:"quirks,omitempty"` // replaces the preset's quirks when set
	// Traumas replace the preset's traumas when set.
	Traumas []string `yaml:"traumas,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultTool: tools.DefaultToolName,
		History: HistoryConfig{
			Retention:       phi.HistoryWindow * 3,
			Window:          phi.HistoryWindow,
			DampingStrength: phi.Matter,
			DampingFloor:    phi.Agnosis,
		},
		Simulation: SimulationConfig{
			TickInterval:  time.Second,
			EventRate:     phi.Psyche,
			Concurrency:   4,
			ActionTimeout: 250 * time.Millisecond,
			SaveEvery:     60,
			DBPath:        "data/npcsim.db",
			APIPort:       8080,
			Characters: []CharacterSpec{
				{Name: "Bram", Preset: "aggressive"},
				{Name: "Ilsa", Preset: "friendly"},
				{Name: "Tobin", Preset: "cautious"},
				{Name: "Maren", Preset: "stoic"},
				{Name: "Corvin", Preset: "volatile"},
				{Name: "Wren", Random: true},
			},
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("NPCSIM_DB"); v != "" {
		c.Simulation.DBPath = v
	}
	if v := getenv("NPCSIM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("NPCSIM_SEED: %w", err)
		}
		c.Seed = seed
	}
	if v := getenv("NPCSIM_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NPCSIM_API_PORT: %w", err)
		}
		c.Simulation.APIPort = port
	}
	return nil
}

// Validate checks the configuration by building every component once.
func (c *Config) Validate() error {
	if _, err := c.Template(); err != nil {
		return err
	}
	lib, err := c.Library()
	if err != nil {
		return err
	}
	if _, err := c.Interpreter(); err != nil {
		return err
	}
	if _, err := c.DecisionConfig(); err != nil {
		return err
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	if c.History.Retention < c.History.Window {
		return fmt.Errorf("config: history.retention (%d) must be at least history.window (%d)", c.History.Retention, c.History.Window)
	}

	s := c.Simulation
	if s.TickInterval <= 0 {
		return fmt.Errorf("config: simulation.tick_interval must be positive")
	}
	if s.EventRate < 0 || s.EventRate > 1 {
		return fmt.Errorf("config: simulation.event_rate must be within [0, 1]")
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("config: simulation.concurrency must be at least 1")
	}
	if s.APIPort < 0 || s.APIPort > 65535 {
		return fmt.Errorf("config: simulation.api_port %d out of range", s.APIPort)
	}
	seen := make(map[string]bool)
	for _, ch := range s.Characters {
		if ch.Name == "" {
			return fmt.Errorf("config: character without name")
		}
		if seen[ch.Name] {
			return fmt.Errorf("config: duplicate character %q", ch.Name)
		}
		seen[ch.Name] = true
		if ch.Preset != "" && ch.Random {
			return fmt.Errorf("config: character %s: preset and random are exclusive", ch.Name)
		}
		if ch.Preset != "" {
			if _, ok := personality.LookupPreset(ch.Preset); !ok {
				return fmt.Errorf("config: character %s: unknown preset %q", ch.Name, ch.Preset)
			}
		}
		if _, err := traitOverrides(ch.Traits); err != nil {
			return fmt.Errorf("config: character %s: %w", ch.Name, err)
		}
		if _, err := lib.Resolve(ch.Quirks); err != nil {
			return fmt.Errorf("config: character %s: %w", ch.Name, err)
		}
		for _, name := range ch.Traumas {
			if _, err := stimulus.ParseTraumaTag(name); err != nil {
				return fmt.Errorf("config: character %s: %w", ch.Name, err)
			}
		}
	}
	return nil
}

// Template builds the personality template: unit bounds and default context
// sensitivities, overridden by trait_bounds and context_sensitivities.
func (c *Config) Template() (*personality.Template, error) {
	t := personality.DefaultTemplate()
	for name, b := range c.TraitBounds {
		tr, err := personality.ParseTrait(name)
		if err != nil {
			return nil, fmt.Errorf("config: trait_bounds: %w", err)
		}
		if err := t.SetBounds(tr, b); err != nil {
			return nil, fmt.Errorf("config: trait_bounds: %w", err)
		}
	}
	for name, dims := range c.ContextSensitivities {
		tr, err := personality.ParseTrait(name)
		if err != nil {
			return nil, fmt.Errorf("config: context_sensitivities: %w", err)
		}
		for dimName, coeff := range dims {
			d, err := personality.ParseContextDimension(dimName)
			if err != nil {
				return nil, fmt.Errorf("config: context_sensitivities: %w", err)
			}
			if err := t.SetSensitivity(tr, d, coeff); err != nil {
				return nil, fmt.Errorf("config: context_sensitivities: %w", err)
			}
		}
	}
	return t, nil
}

// Library builds the quirk library: built-ins, with file quirks replacing
// built-ins of the same name and new ones appended.
func (c *Config) Library() (*personality.Library, error) {
	custom, err := personality.CompileQuirks(c.Quirks)
	if err != nil {
		return nil, fmt.Errorf("config: quirks: %w", err)
	}
	override := make(map[string]personality.Quirk, len(custom))
	for _, q := range custom {
		override[q.Name] = q
	}

	lib, _ := personality.NewLibrary()
	for _, q := range personality.DefaultQuirks() {
		if o, ok := override[q.Name]; ok {
			q = o
			delete(override, q.Name)
		}
		if err := lib.Add(q); err != nil {
			return nil, fmt.Errorf("config: quirks: %w", err)
		}
	}
	for _, q := range custom {
		if _, pending := override[q.Name]; !pending {
			continue
		}
		if err := lib.Add(q); err != nil {
			return nil, fmt.Errorf("config: quirks: %w", err)
		}
		delete(override, q.Name)
	}
	return lib, nil
}

// Interpreter builds the stimulus interpreter.
func (c *Config) Interpreter() (*stimulus.Interpreter, error) {
	custom, err := stimulus.CompileRules(c.Rules)
	if err != nil {
		return nil, fmt.Errorf("config: rules: %w", err)
	}
	classifier := stimulus.NewClassifier(append(custom, stimulus.DefaultRules()...)...)

	model := stimulus.DefaultSalienceModel()
	if len(c.Salience.Dimensions) > 0 {
		if unknown := model.Restrict(c.Salience.Dimensions); len(unknown) > 0 {
			return nil, fmt.Errorf("config: salience.dimensions: unknown %v", unknown)
		}
	}
	return stimulus.NewInterpreter(classifier, model, stimulus.DefaultModifiers()...), nil
}

// DecisionConfig builds the engine tuning.
func (c *Config) DecisionConfig() (decision.Config, error) {
	dc := decision.Config{
		DefaultTool:     c.DefaultTool,
		Window:          c.History.Window,
		DampingStrength: c.History.DampingStrength,
		DampingFloor:    c.History.DampingFloor,
	}
	if len(c.Sensitivities) > 0 {
		dc.Sensitivities = make(map[string][]tools.Sensitivity, len(c.Sensitivities))
		for tool, traits := range c.Sensitivities {
			byTrait := make(map[personality.Trait]float64, len(traits))
			for name, w := range traits {
				tr, err := personality.ParseTrait(name)
				if err != nil {
					return decision.Config{}, fmt.Errorf("config: sensitivities.%s: %w", tool, err)
				}
				byTrait[tr] = w
			}
			sens := make([]tools.Sensitivity, 0, len(byTrait))
			for _, tr := range personality.AllTraits() {
				if w, ok := byTrait[tr]; ok {
					sens = append(sens, tools.Sensitivity{Trait: tr, Weight: w})
				}
			}
			dc.Sensitivities[tool] = sens
		}
	}
	if err := dc.Validate(); err != nil {
		return decision.Config{}, fmt.Errorf("config: %w", err)
	}
	return dc, nil
}

// Registry returns the reference toolbox and checks the configuration's tool
// names against it.
func (c *Config) Registry() (*tools.Registry, error) {
	reg := tools.NewDefaultRegistry()
	if _, ok := reg.Get(c.DefaultTool); !ok {
		return nil, fmt.Errorf("config: default_tool %q is not registered", c.DefaultTool)
	}
	for name := range c.Sensitivities {
		if _, ok := reg.Get(name); !ok {
			return nil, fmt.Errorf("config: sensitivities: unknown tool %q", name)
		}
	}
	return reg, nil
}

// BuildProfile creates the profile for one character spec.
func BuildProfile(ch CharacterSpec, rng entropy.Source, tmpl *personality.Template, lib *personality.Library) (*personality.Profile, error) {
	if tmpl == nil {
		tmpl = personality.DefaultTemplate()
	}
	var p *personality.Profile
	switch {
	case ch.Preset != "":
		var err error
		p, err = personality.FromPreset(ch.Preset, tmpl, lib)
		if err != nil {
			return nil, err
		}
	case ch.Random:
		p = personality.Random(ch.Name, rng, tmpl, lib)
	default:
		p = personality.New(ch.Name, tmpl.Neutral(), tmpl)
	}

	overrides, err := traitOverrides(ch.Traits)
	if err != nil {
		return nil, err
	}
	quirks := p.Quirks()
	if len(ch.Quirks) > 0 {
		if quirks, err = lib.Resolve(ch.Quirks); err != nil {
			return nil, err
		}
	}
	if len(overrides) > 0 || len(ch.Quirks) > 0 {
		core := p.Core()
		for t, v := range overrides {
			core[t] = v
		}
		desc, traumas := p.Description, p.Traumas
		p = personality.New(ch.Name, core, tmpl, quirks...)
		p.Description = desc
		p.Traumas = traumas
	}
	if len(ch.Traumas) > 0 {
		p.Traumas = make([]stimulus.TraumaTag, 0, len(ch.Traumas))
		for _, name := range ch.Traumas {
			t, err := stimulus.ParseTraumaTag(name)
			if err != nil {
				return nil, fmt.Errorf("character %s: %w", ch.Name, err)
			}
			p.Traumas = append(p.Traumas, t)
		}
	}
	p.Name = ch.Name
	return p, nil
}

func traitOverrides(m map[string]float64) (map[personality.Trait]float64, error) {
	out := make(map[personality.Trait]float64, len(m))
	for name, v := range m {
		t, err := personality.ParseTrait(name)
		if err != nil {
			return nil, err
		}
		out[t] = v
	}
	return out, nil
}
