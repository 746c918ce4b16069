package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npc-cognition/internal/entropy"
	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/stimulus"
	"github.com/talgya/npc-cognition/internal/tools"
)

const sampleYAML = `
seed: 7
default_tool: idle
trait_bounds:
  aggressiveness: {min: 0.1, max: 0.6}
sensitivities:
  flee:
    neuroticism: 2
    aggressiveness: -1
context_sensitivities:
  neuroticism:
    stress: 0.5
history:
  retention: 20
  window: 10
  damping_strength: 0.5
  damping_floor: 0.3
salience:
  dimensions: [narrative, emotional]
rules:
  - name: tavern-brawl
    when:
      types: [dialogue]
      content_pattern: '\bbrawl\b'
    schema: threat
    intent: provoke
quirks:
  - name: Quick to anger
    when: {schemas: [insult]}
    effects: [{tool: attack, multiply: 3}]
  - name: Hates crowds
    effects: [{tool: flee, add: 0.2}]
simulation:
  tick_interval: 250ms
  event_rate: 0.5
  concurrency: 2
  characters:
    - name: Bram
      preset: aggressive
      traits: {dominance: 0.3}
    - name: Wren
      random: true
      quirks: [Hates crowds]
`

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Len(t, c.Simulation.Characters, 6)
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, int64(7), c.Seed)
	assert.Equal(t, 250*time.Millisecond, c.Simulation.TickInterval)
	assert.Equal(t, "data/npcsim.db", c.Simulation.DBPath, "unset keys keep their default")
	assert.Len(t, c.Simulation.Characters, 2)

	tmpl, err := c.Template()
	require.NoError(t, err)
	assert.Equal(t, personality.Bounds{Min: 0.1, Max: 0.6}, tmpl.Bounds[personality.Aggressiveness])
	assert.Equal(t, 0.5, tmpl.Sensitivity[personality.Neuroticism][personality.Stress])

	dc, err := c.DecisionConfig()
	require.NoError(t, err)
	assert.Equal(t, 10, dc.Window)
	assert.Equal(t, 0.3, dc.DampingFloor)
	assert.Equal(t, []tools.Sensitivity{
		{Trait: personality.Aggressiveness, Weight: -1},
		{Trait: personality.Neuroticism, Weight: 2},
	}, dc.Sensitivities["flee"])

	in, err := c.Interpreter()
	require.NoError(t, err)
	assert.Equal(t, []stimulus.Dimension{stimulus.DimNarrative, stimulus.DimEmotional}, in.Dimensions())
	s, err := in.Interpret(stimulus.RawEvent{ID: "e", Type: stimulus.TypeDialogue, Actor: "bram", Content: "You fool, fancy a brawl?"}, stimulus.WorldContext{})
	require.NoError(t, err)
	assert.Equal(t, "tavern-brawl", s.MatchedRule, "file rules are tried first")

	lib, err := c.Library()
	require.NoError(t, err)
	assert.Equal(t, len(personality.DefaultQuirks())+1, lib.Len())
	anger, ok := lib.Get("Quick to anger")
	require.True(t, ok)
	assert.Equal(t, []personality.Effect{personality.Mul("attack", 3)}, anger.Effects)
	_, ok = lib.Get("Hates crowds")
	assert.True(t, ok)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "npcsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.Seed)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestValidationErrors(t *testing.T) {
	tests := map[string]string{
		"unknown trait":        "trait_bounds: {charisma: {min: 0, max: 1}}",
		"inverted bounds":      "trait_bounds: {openness: {min: 0.8, max: 0.2}}",
		"unknown context":      "context_sensitivities: {openness: {weather: 0.1}}",
		"unknown dimension":    "salience: {dimensions: [gossip]}",
		"missing default tool": "default_tool: dance",
		"unknown tool":         "sensitivities: {dance: {openness: 1}}",
		"short retention":      "history: {retention: 5, window: 10}",
		"bad floor":            "history: {damping_floor: 2}",
		"bad rule":             "rules: [{name: x, when: {content_pattern: '('}, schema: threat}]",
		"bad preset":           "simulation: {characters: [{name: A, preset: heroic}]}",
		"preset and random":    "simulation: {characters: [{name: A, preset: stoic, random: true}]}",
		"duplicate character":  "simulation: {characters: [{name: A}, {name: A}]}",
		"unknown quirk":        "simulation: {characters: [{name: A, quirks: [Breathes fire]}]}",
		"bad event rate":       "simulation: {event_rate: 3}",
		"unknown trauma":       "simulation: {characters: [{name: A, traumas: [heartburn]}]}",
		"duplicate quirk": `
quirks:
  - {name: Twitchy, effects: [{tool: flee, add: 0.1}]}
  - {name: Twitchy, effects: [{tool: hide, add: 0.1}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{"NPCSIM_DB": "/tmp/x.db", "NPCSIM_SEED": "99", "NPCSIM_API_PORT": "9090"}
	c := Default()
	require.NoError(t, c.ApplyEnv(func(k string) string { return env[k] }))
	assert.Equal(t, "/tmp/x.db", c.Simulation.DBPath)
	assert.Equal(t, int64(99), c.Seed)
	assert.Equal(t, 9090, c.Simulation.APIPort)

	env["NPCSIM_SEED"] = "many"
	assert.Error(t, Default().ApplyEnv(func(k string) string { return env[k] }))
}

func TestBuildProfile(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	tmpl, err := c.Template()
	require.NoError(t, err)
	lib, err := c.Library()
	require.NoError(t, err)

	bram, err := BuildProfile(c.Simulation.Characters[0], entropy.New(1), tmpl, lib)
	require.NoError(t, err)
	assert.Equal(t, "Bram", bram.Name)
	assert.Equal(t, 0.3, bram.Baseline(personality.Dominance))
	assert.InDelta(t, 0.55, bram.Baseline(personality.Aggressiveness), 1e-9, "preset value mapped into configured bounds")
	assert.Equal(t, []stimulus.TraumaTag{stimulus.TraumaPowerlessness}, bram.Traumas)
	assert.Equal(t, []string{"Quick to anger", "Enjoys intimidation"}, bram.QuirkNames())

	w1, err := BuildProfile(c.Simulation.Characters[1], entropy.New(5), tmpl, lib)
	require.NoError(t, err)
	w2, err := BuildProfile(c.Simulation.Characters[1], entropy.New(5), tmpl, lib)
	require.NoError(t, err)
	assert.Equal(t, w1.Core(), w2.Core())
	assert.Equal(t, []string{"Hates crowds"}, w1.QuirkNames())

	plain, err := BuildProfile(CharacterSpec{Name: "Nobody"}, nil, tmpl, lib)
	require.NoError(t, err)
	assert.Equal(t, tmpl.Neutral(), plain.Core())
	assert.InDelta(t, 0.35, plain.Baseline(personality.Aggressiveness), 1e-9, "neutral is the midpoint of the bounds")
	assert.Equal(t, 0.5, plain.Baseline(personality.Openness))

	scarred, err := BuildProfile(CharacterSpec{Name: "Ilsa", Preset: "friendly", Traumas: []string{"abandonment", "violence"}}, nil, tmpl, lib)
	require.NoError(t, err)
	assert.Equal(t, []stimulus.TraumaTag{stimulus.TraumaAbandonment, stimulus.TraumaViolence}, scarred.Traumas)
}

func TestLibraryRejectsDuplicateQuirks(t *testing.T) {
	c := Default()
	c.Quirks = []personality.QuirkSpec{
		{Name: "Hates crowds", Effects: []personality.EffectSpec{{Tool: tools.NameFlee, Add: ptr(0.2)}}},
		{Name: "Hates crowds", Effects: []personality.EffectSpec{{Tool: tools.NameHide, Add: ptr(0.4)}}},
	}
	_, err := c.Library()
	assert.ErrorContains(t, err, `duplicate quirk "Hates crowds"`)

	c.Quirks = c.Quirks[:1]
	lib, err := c.Library()
	require.NoError(t, err)
	_, ok := lib.Get("Hates crowds")
	assert.True(t, ok)
}

func ptr(v float64) *float64 { return &v }
