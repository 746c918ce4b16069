package stimulus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialogue(id, actor, content string) RawEvent {
	return RawEvent{ID: id, Type: TypeDialogue, Channel: ChannelAuditory, Actor: actor, Content: content}
}

func TestInterpretRejectsMissingActor(t *testing.T) {
	in := DefaultInterpreter()

	for _, ev := range []RawEvent{
		{ID: "e1", Type: TypeDialogue, Content: "You worthless fool!"},
		{ID: "e2", Type: TypeGesture, Content: "spits on the ground"},
		{ID: "e3", Type: TypePhysicalContact, Content: "shoves you", Actor: "   "},
		{ID: "e4", Type: TypeObjectInteraction, Attributes: map[string]string{"action": "give"}},
	} {
		s, err := in.Interpret(ev, WorldContext{})
		require.Error(t, err, ev.ID)
		assert.True(t, errors.Is(err, ErrMalformedEvent), ev.ID)

		var mErr *MalformedEventError
		require.True(t, errors.As(err, &mErr), ev.ID)
		assert.Equal(t, FieldActor, mErr.Field)
		assert.Equal(t, ev.ID, mErr.EventID)
		assert.Empty(t, s.Actor, "no actor may be fabricated")
		assert.Empty(t, s.Schema, "no stimulus is produced")
	}
}

func TestInterpretRejectsEmptyDialogueAndUnknownType(t *testing.T) {
	in := DefaultInterpreter()

	_, err := in.Interpret(dialogue("e1", "bram", "  "), WorldContext{})
	var mErr *MalformedEventError
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, FieldContent, mErr.Field)

	_, err = in.Interpret(RawEvent{ID: "e2", Type: "telepathy", Actor: "bram"}, WorldContext{})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestEnvironmentEventNeedsNoActor(t *testing.T) {
	in := DefaultInterpreter()
	s, err := in.Interpret(RawEvent{ID: "e1", Type: TypeEnvironment, Content: "The bridge collapses into the river"}, WorldContext{})
	require.NoError(t, err)
	assert.False(t, s.HasActor())
	assert.Equal(t, SchemaEnvironmentalChange, s.Schema)
	assert.Equal(t, IntentNeutral, s.Intent)
	assert.Equal(t, "environment-change", s.MatchedRule)
}

func TestDefaultClassification(t *testing.T) {
	in := DefaultInterpreter()
	hostile := WorldContext{Relationships: map[string]Relationship{"bram": {Sentiment: -0.5, Importance: 0.4}}}

	tests := []struct {
		name   string
		ev     RawEvent
		wc     WorldContext
		schema Schema
		intent Intent
		rule   string
	}{
		{"insult", dialogue("1", "bram", "You worthless fool!"), WorldContext{}, SchemaInsult, IntentHumiliate, "insult"},
		{"threat", dialogue("2", "bram", "I'll kill you for this."), WorldContext{}, SchemaThreat, IntentCoerce, "explicit-threat"},
		{"violence", RawEvent{ID: "3", Type: TypePhysicalContact, Actor: "bram", Content: "Bram shoves you hard"}, WorldContext{}, SchemaViolence, IntentAssertControl, "violent-contact"},
		{"weapon", RawEvent{ID: "4", Type: TypeGesture, Actor: "bram", Content: "draws a knife"}, WorldContext{}, SchemaThreat, IntentWarn, "weapon-drawn"},
		{"plea", dialogue("5", "ilsa", "Please, help me!"), WorldContext{}, SchemaRequest, IntentSeekHelp, "plea-for-help"},
		{"gift", RawEvent{ID: "6", Type: TypeObjectInteraction, Actor: "ilsa", Attributes: map[string]string{"action": "give", "item": "bread"}}, WorldContext{}, SchemaGift, IntentBuildRapport, "gift"},
		{"praise", dialogue("7", "ilsa", "Well done, that was brave."), WorldContext{}, SchemaPraise, IntentBuildRapport, "praise"},
		{"demand from enemy", dialogue("8", "bram", "Give me the key."), hostile, SchemaDominanceAssertion, IntentCoerce, "hostile-demand"},
		{"demand from stranger", dialogue("9", "bram", "Give me the key."), WorldContext{}, SchemaUnknown, IntentNeutral, ""},
		{"small talk", dialogue("10", "ilsa", "The weather is fine today."), WorldContext{}, SchemaUnknown, IntentNeutral, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := in.Interpret(tt.ev, tt.wc)
			require.NoError(t, err)
			assert.Equal(t, tt.schema, s.Schema)
			assert.Equal(t, tt.intent, s.Intent)
			assert.Equal(t, tt.rule, s.MatchedRule)
		})
	}
}

func TestInterpretIsDeterministic(t *testing.T) {
	in := DefaultInterpreter()
	ev := dialogue("e1", "bram", "You PATHETIC coward!!")
	ev.Attributes = map[string]string{"beat": "siege"}
	wc := WorldContext{
		Tension:       0.3,
		Relationships: map[string]Relationship{"bram": {Sentiment: -0.7, Importance: 0.9}},
		StoryBeats:    map[string]float64{"siege": 0.6},
	}

	first, err := in.Interpret(ev, wc)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := in.Interpret(ev, wc)
		require.NoError(t, err)
		assert.Equal(t, first.Schema, again.Schema)
		assert.Equal(t, first.Intent, again.Intent)
		assert.True(t, first.Salience.Equal(again.Salience))
	}
}

func TestSalienceScoring(t *testing.T) {
	in := DefaultInterpreter()
	ev := dialogue("e1", "bram", "Hand it over.")
	ev.Attributes = map[string]string{"intensity": "0.9", "moral": "1.7"}
	wc := WorldContext{
		Tension:       0.5,
		Relationships: map[string]Relationship{"bram": {Sentiment: -0.8, Importance: 0.6}},
	}

	s, err := in.Interpret(ev, wc)
	require.NoError(t, err)

	sal := s.Salience
	assert.Equal(t, []Dimension{DimEmotional, DimRelationship, DimNarrative, DimExistential, DimMoral}, sal.Dimensions())
	assert.InDelta(t, 0.9, sal.Get(DimEmotional), 1e-9)
	assert.InDelta(t, 0.7, sal.Get(DimRelationship), 1e-9)
	assert.InDelta(t, 0.4, sal.Get(DimNarrative), 1e-9)
	assert.Equal(t, 0.0, sal.Get(DimExistential), "missing data scores zero")
	assert.Equal(t, 1.0, sal.Get(DimMoral), "clamped to the unit range")
	assert.InDelta(t, 0.6, sal.Mean(), 1e-9)
}

func TestScoreEmotionalFromContent(t *testing.T) {
	v, ok := ScoreEmotional(dialogue("e", "a", "STOP RIGHT THERE!!"), WorldContext{})
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-9)

	v, ok = ScoreEmotional(dialogue("e", "a", "good morning"), WorldContext{})
	require.True(t, ok)
	assert.InDelta(t, 0.2, v, 1e-9)

	_, ok = ScoreEmotional(RawEvent{Type: TypeEnvironment}, WorldContext{})
	assert.False(t, ok)
}

func TestSalienceModelRestrict(t *testing.T) {
	m := DefaultSalienceModel()
	unknown := m.Restrict([]Dimension{DimNarrative, "gossip", DimEmotional})
	assert.Equal(t, []Dimension{"gossip"}, unknown)
	assert.Equal(t, []Dimension{DimNarrative, DimEmotional}, m.Dimensions())

	s := m.Score(RawEvent{Type: TypeEnvironment}, WorldContext{})
	assert.Equal(t, []Dimension{DimNarrative, DimEmotional}, s.Dimensions())
	assert.Equal(t, 0.0, s.Mean())
}

func TestSalienceJSONKeepsOrder(t *testing.T) {
	s := SalienceOf(DimNarrative, 0.4, DimEmotional, 0.9)
	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"dimension":"narrative","value":0.4},{"dimension":"emotional","value":0.9}]`, string(data))

	var back Salience
	require.NoError(t, back.UnmarshalJSON(data))
	assert.True(t, s.Equal(back))
}

func TestClassifierFirstMatchWins(t *testing.T) {
	always := func(RawEvent, WorldContext) bool { return true }
	c := NewClassifier(
		Rule{Name: "first", Match: always, Schema: SchemaThreat, Intent: IntentWarn},
		Rule{Name: "second", Match: always, Schema: SchemaPraise, Intent: IntentBuildRapport},
	)
	schema, intent, rule := c.Classify(RawEvent{}, WorldContext{})
	assert.Equal(t, SchemaThreat, schema)
	assert.Equal(t, IntentWarn, intent)
	assert.Equal(t, "first", rule)

	empty := NewClassifier()
	schema, intent, rule = empty.Classify(RawEvent{}, WorldContext{})
	assert.Equal(t, SchemaUnknown, schema)
	assert.Equal(t, IntentNeutral, intent)
	assert.Empty(t, rule)
}

func TestDefaultRulesCompile(t *testing.T) {
	require.NotPanics(t, func() { DefaultRules() })
	assert.Len(t, DefaultRules(), len(DefaultRuleSpecs()))
}

const ruleYAML = `
rules:
  - name: tavern-brawl
    when:
      types: [dialogue]
      content_pattern: '\bbrawl\b'
      tension_above: 0.5
    schema: threat
    intent: provoke
  - name: any-dialogue
    when:
      types: [dialogue]
      has_actor: true
    schema: request
`

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(ruleYAML))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	in := NewInterpreter(NewClassifier(rules...), nil)

	s, err := in.Interpret(dialogue("e1", "bram", "Fancy a BRAWL?"), WorldContext{Tension: 0.8})
	require.NoError(t, err)
	assert.Equal(t, SchemaThreat, s.Schema)
	assert.Equal(t, IntentProvoke, s.Intent)

	s, err = in.Interpret(dialogue("e2", "bram", "Fancy a brawl?"), WorldContext{Tension: 0.2})
	require.NoError(t, err)
	assert.Equal(t, SchemaRequest, s.Schema)
	assert.Equal(t, IntentNeutral, s.Intent, "omitted intent defaults to neutral")
}

func TestParseRulesErrors(t *testing.T) {
	_, err := ParseRules([]byte("rules:\n  - name: bad\n    when: {content_pattern: '('}\n    schema: threat\n"))
	assert.ErrorContains(t, err, "content pattern")

	_, err = ParseRules([]byte("rules:\n  - name: a\n    schema: threat\n  - name: a\n    schema: praise\n"))
	assert.ErrorContains(t, err, "duplicate rule")

	_, err = ParseRules([]byte("rules:\n  - name: noschema\n"))
	assert.ErrorContains(t, err, "schema is required")
}
