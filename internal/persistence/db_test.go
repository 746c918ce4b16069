package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npc-cognition/internal/decision"
	"github.com/talgya/npc-cognition/internal/engine"
	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/stimulus"
	"github.com/talgya/npc-cognition/internal/tools"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "npcsim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCharacterTripleRoundTrip(t *testing.T) {
	db := openTestDB(t)
	assert.False(t, db.HasWorldState())

	p, err := personality.FromPreset("aggressive", nil, nil)
	require.NoError(t, err)
	p.ID = "c-1"
	p.Name = "Bram"
	require.NoError(t, p.ApplyContextDelta(personality.Stress, 0.4))
	require.NoError(t, p.ApplyContextDelta(personality.Mood, -0.25))
	require.NoError(t, p.ApplyTrustDelta("ilsa", 0.6))

	q := personality.New("Wren", personality.NeutralVector(), nil)
	q.ID = "c-2"

	require.NoError(t, db.SaveCharacters([]personality.Snapshot{p.Snapshot(), q.Snapshot()}))
	assert.True(t, db.HasWorldState())

	snaps, err := db.LoadCharacters()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, p.Snapshot(), snaps[0])
	assert.Equal(t, "Wren", snaps[1].Name)
	assert.Empty(t, snaps[1].Quirks)

	restored, err := personality.Restore(snaps[0], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, p.Core(), restored.Core())
	assert.Equal(t, p.Context(), restored.Context())
	assert.Equal(t, p.QuirkNames(), restored.QuirkNames())
	assert.Equal(t, []stimulus.TraumaTag{stimulus.TraumaPowerlessness}, restored.Traumas)
	assert.Equal(t, p.EffectiveTraits("ilsa"), restored.EffectiveTraits("ilsa"))
	assert.Nil(t, snaps[1].Traumas)
}

func TestSaveCharactersReplaces(t *testing.T) {
	db := openTestDB(t)
	a := personality.New("A", personality.NeutralVector(), nil)
	a.ID = "a"
	b := personality.New("B", personality.NeutralVector(), nil)
	b.ID = "b"

	require.NoError(t, db.SaveCharacters([]personality.Snapshot{a.Snapshot(), b.Snapshot()}))
	require.NoError(t, db.SaveCharacters([]personality.Snapshot{b.Snapshot()}))

	snaps, err := db.LoadCharacters()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "b", snaps[0].ID)
}

func record(seq uint64, selected string, failed bool) decision.DecisionRecord {
	ev := stimulus.RawEvent{ID: "ev", Type: stimulus.TypeDialogue, Actor: "x", Content: "hi"}
	return decision.DecisionRecord{
		Seq:       seq,
		Tick:      seq * 10,
		Timestamp: time.Date(2026, 5, 1, 8, 0, int(seq), 0, time.UTC),
		Stimulus: stimulus.NewInterpreted(ev, stimulus.SchemaInsult, stimulus.IntentHumiliate,
			stimulus.SalienceOf(stimulus.DimEmotional, 0.5, stimulus.DimNarrative, 0.25)),
		Weights:  []decision.ToolWeight{{Tool: selected, Base: 0.5, Personality: 1.2, Quirked: 0.6, Damping: 1, Final: 0.6}},
		Selected: selected,
		Result:   tools.ActionResult{Tool: selected, Kind: tools.KindSpeak, Reference: "dialogue.insult.retort", Intensity: 0.7, Params: map[string]string{"tone": "cold"}},
		Failed:   failed,
	}
}

func TestDecisionLogRoundTrip(t *testing.T) {
	db := openTestDB(t)

	var entries []engine.DecisionEntry
	for seq := uint64(1); seq <= 5; seq++ {
		entries = append(entries, engine.DecisionEntry{CharacterID: "c-1", Record: record(seq, tools.NameDialogueResponse, seq == 3)})
	}
	entries = append(entries, engine.DecisionEntry{CharacterID: "c-2", Record: record(1, tools.NameFlee, false)})
	require.NoError(t, db.AppendDecisions(entries))
	// Re-saving the same sequence numbers is a no-op.
	require.NoError(t, db.AppendDecisions(entries[:2]))

	recs, err := db.LoadDecisions("c-1", 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{recs[0].Seq, recs[1].Seq, recs[2].Seq})
	assert.True(t, recs[0].Failed)
	assert.Equal(t, record(4, tools.NameDialogueResponse, false).Stimulus.Salience.Map(), recs[1].Stimulus.Salience.Map())
	assert.Equal(t, "cold", recs[2].Result.Params["tone"])
	assert.True(t, recs[2].Timestamp.Equal(record(5, "", false).Timestamp))

	usage, err := db.ToolUsage()
	require.NoError(t, err)
	assert.Equal(t, 5, usage[tools.NameDialogueResponse])
	assert.Equal(t, 1, usage[tools.NameFlee])

	h := decision.NewHistory(10)
	h.Load(recs)
	next := h.Append(decision.DecisionRecord{Selected: tools.NameIdle})
	assert.Equal(t, uint64(6), next.Seq)
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetMeta("last_tick")
	assert.ErrorIs(t, err, ErrNoMeta)
	assert.Equal(t, uint64(0), db.LastTick())

	require.NoError(t, db.SaveMeta("last_tick", "1440"))
	require.NoError(t, db.SaveMeta("last_tick", "2880"))
	assert.Equal(t, uint64(2880), db.LastTick())
}

func TestSaveWorldState(t *testing.T) {
	db := openTestDB(t)
	sim := engine.NewSimulation(engine.Options{Seed: 21, Concurrency: 1, ActionTimeout: time.Second},
		stimulus.DefaultInterpreter(), tools.NewDefaultRegistry())
	p, err := personality.FromPreset("cautious", nil, nil)
	require.NoError(t, err)
	c, err := sim.Spawn(p, decision.DefaultConfig())
	require.NoError(t, err)

	_, err = sim.InjectEvent(c.ID, stimulus.RawEvent{Type: stimulus.TypeDialogue, Actor: "bandit", Content: "I'll kill you."})
	require.NoError(t, err)
	sim.TickMinute(30)

	require.NoError(t, db.SaveWorldState(sim))
	assert.Equal(t, uint64(30), db.LastTick())

	snaps, err := db.LoadCharacters()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, c.ID, snaps[0].ID)
	assert.Greater(t, snaps[0].Context.Stress, 0.0)

	recs, err := db.LoadDecisions(c.ID, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, stimulus.SchemaThreat, recs[0].Stimulus.Schema)
	assert.Empty(t, sim.TakeDecisions())
}

func TestFailedSaveKeepsDecisionsQueued(t *testing.T) {
	sim := engine.NewSimulation(engine.Options{Seed: 21, Concurrency: 1, ActionTimeout: time.Second},
		stimulus.DefaultInterpreter(), tools.NewDefaultRegistry())
	p, err := personality.FromPreset("aggressive", nil, nil)
	require.NoError(t, err)
	c, err := sim.Spawn(p, decision.DefaultConfig())
	require.NoError(t, err)
	_, err = sim.InjectEvent(c.ID, stimulus.RawEvent{Type: stimulus.TypeDialogue, Actor: "bram", Content: "You worthless fool!"})
	require.NoError(t, err)
	sim.TickMinute(1)

	broken := openTestDB(t)
	require.NoError(t, broken.Close())
	require.Error(t, broken.SaveWorldState(sim))

	db := openTestDB(t)
	require.NoError(t, db.SaveWorldState(sim), "retry against a working database")
	recs, err := db.LoadDecisions(c.ID, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, stimulus.SchemaInsult, recs[0].Stimulus.Schema)
	assert.Empty(t, sim.TakeDecisions())
}

func TestReset(t *testing.T) {
	db := openTestDB(t)
	a := personality.New("A", personality.NeutralVector(), nil)
	a.ID = "a"
	require.NoError(t, db.SaveCharacters([]personality.Snapshot{a.Snapshot()}))
	require.NoError(t, db.AppendDecisions([]engine.DecisionEntry{{CharacterID: "a", Record: record(1, tools.NameIdle, false)}}))
	require.NoError(t, db.SaveMeta("last_tick", "99"))

	require.NoError(t, db.Reset())
	assert.False(t, db.HasWorldState())
	assert.Equal(t, uint64(0), db.LastTick())
	recs, err := db.LoadDecisions("a", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
