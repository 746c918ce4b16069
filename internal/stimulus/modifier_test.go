package stimulus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameEventReadsDifferentlyByPerceiver(t *testing.T) {
	in := DefaultInterpreter()
	ev := dialogue("e2", "bram", "You worthless fool!")

	wounded := WorldContext{Perceiver: Perceiver{
		Traits:   map[string]float64{"neuroticism": 0.9},
		Traumas:  []TraumaTag{TraumaShame, TraumaBetrayal},
		Memories: []Memory{{EventID: "e1", Actor: "bram", Schema: SchemaInsult, Tick: 3}},
	}}
	steady := WorldContext{Perceiver: Perceiver{
		Traits: map[string]float64{"neuroticism": 0.1},
	}}

	a, err := in.Interpret(ev, wounded)
	require.NoError(t, err)
	b, err := in.Interpret(ev, steady)
	require.NoError(t, err)

	assert.Equal(t, a.Schema, b.Schema, "classification ignores the perceiver")
	assert.Equal(t, a.Intent, b.Intent)

	assert.Equal(t, []TraumaTag{TraumaShame}, a.TraumaTriggers)
	assert.Equal(t, []string{"e1"}, a.MemoryRefs)
	assert.Empty(t, b.TraumaTriggers)
	assert.Empty(t, b.MemoryRefs)

	assert.Greater(t, a.Salience.Get(DimEmotional), b.Salience.Get(DimEmotional))
	assert.Greater(t, a.Salience.Get(DimExistential), b.Salience.Get(DimExistential))
	assert.Greater(t, a.Salience.Get(DimRelationship), b.Salience.Get(DimRelationship))

	again, err := in.Interpret(ev, wounded)
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestNeutralPerceiverLeavesSalienceAlone(t *testing.T) {
	plain := NewInterpreter(nil, nil)
	mod := DefaultInterpreter()
	ev := dialogue("e1", "bram", "I'll kill you.")

	want, err := plain.Interpret(ev, WorldContext{})
	require.NoError(t, err)
	got, err := mod.Interpret(ev, WorldContext{Perceiver: Perceiver{
		Traits: map[string]float64{"neuroticism": 0.5, "agreeableness": 0.5, "conscientiousness": 0.5},
	}})
	require.NoError(t, err)
	assert.True(t, want.Salience.Equal(got.Salience))
}

type tagModifier string

func (m tagModifier) Name() string { return string(m) }

func (m tagModifier) Modify(s InterpretedStimulus, _ RawEvent, _ WorldContext) InterpretedStimulus {
	s.MemoryRefs = append(s.MemoryRefs, string(m))
	return s
}

func TestModifiersRunInOrder(t *testing.T) {
	in := NewInterpreter(nil, nil, tagModifier("first"), tagModifier("second"))
	assert.Equal(t, []string{"first", "second"}, in.Modifiers())
	assert.Equal(t, []string{"personality", "memory"}, DefaultInterpreter().Modifiers())

	s, err := in.Interpret(dialogue("e1", "bram", "Hello."), WorldContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, s.MemoryRefs)
}

func TestMemoryModifierRecall(t *testing.T) {
	m := NewMemoryModifier()
	m.MaxRefs = 2
	var mems []Memory
	for i := 1; i <= 4; i++ {
		mems = append(mems, Memory{EventID: fmt.Sprintf("e%d", i), Actor: "bram", Schema: SchemaRequest})
	}
	mems = append(mems, Memory{EventID: "x", Actor: "ada"}, Memory{EventID: "e9", Actor: "bram"})

	ev := dialogue("e9", "bram", "Can you help me?")
	s := NewInterpreted(ev, SchemaRequest, IntentSeekHelp, SalienceOf(DimRelationship, 0.2))
	got := m.Modify(s, ev, WorldContext{Perceiver: Perceiver{Memories: mems}})

	assert.Equal(t, []string{"e4", "e3"}, got.MemoryRefs, "newest first, same actor, never the event itself")
	assert.InDelta(t, 0.3, got.Salience.Get(DimRelationship), 1e-9)
	assert.Empty(t, got.TraumaTriggers, "requests touch no trauma")
}

func TestTraumaBoostSkipsUnscoredDimensions(t *testing.T) {
	ev := dialogue("e1", "bram", "You betrayed us.")
	s := NewInterpreted(ev, SchemaBetrayal, IntentNeutral, SalienceOf(DimEmotional, 0.5))
	got := NewMemoryModifier().Modify(s, ev, WorldContext{Perceiver: Perceiver{Traumas: []TraumaTag{TraumaBetrayal}}})

	assert.Equal(t, []TraumaTag{TraumaBetrayal}, got.TraumaTriggers)
	assert.Equal(t, []Dimension{DimEmotional}, got.Salience.Dimensions())
	assert.Greater(t, got.Salience.Get(DimEmotional), 0.5)
	assert.LessOrEqual(t, got.Salience.Get(DimEmotional), 1.0)
}

func TestParseTraumaTag(t *testing.T) {
	tag, err := ParseTraumaTag("betrayal")
	require.NoError(t, err)
	assert.Equal(t, TraumaBetrayal, tag)
	assert.Contains(t, TraumasFor(SchemaThreat), TraumaViolence)

	_, err = ParseTraumaTag("heartburn")
	assert.ErrorContains(t, err, "unknown trauma")
}
