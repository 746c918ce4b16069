package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npc-cognition/internal/tools"
)

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		h.Append(DecisionRecord{Selected: name})
	}
	require.Equal(t, 3, h.Len())

	recs := h.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{recs[0].Seq, recs[1].Seq, recs[2].Seq})
	assert.Equal(t, "c", recs[0].Selected)
	assert.Equal(t, "e", recs[2].Selected)

	recent := h.Recent(2)
	assert.Equal(t, "d", recent[0].Selected)
	assert.Equal(t, "e", recent[1].Selected)
}

func TestHistoryHandsOutCopies(t *testing.T) {
	h := NewHistory(4)
	h.Append(DecisionRecord{
		Selected: "a",
		Weights:  []ToolWeight{{Tool: "a", Final: 1}},
		Result:   tools.ActionResult{Tool: "a", Params: map[string]string{"style": "warm"}},
	})

	rec, _ := h.Last()
	rec.Weights[0].Final = 99
	rec.Result.Params["style"] = "cold"

	again, _ := h.Last()
	assert.Equal(t, 1.0, again.Weights[0].Final)
	assert.Equal(t, "warm", again.Result.Params["style"])
}

func TestSelectionCountsWindow(t *testing.T) {
	h := NewHistory(10)
	for _, name := range []string{"a", "a", "b", "a", "c"} {
		h.Append(DecisionRecord{Selected: name})
	}
	counts, seen := h.SelectionCounts(3)
	assert.Equal(t, 3, seen)
	assert.Equal(t, map[string]int{"b": 1, "a": 1, "c": 1}, counts)

	counts, seen = h.SelectionCounts(50)
	assert.Equal(t, 5, seen)
	assert.Equal(t, 3, counts["a"])

	_, seen = NewHistory(4).SelectionCounts(4)
	assert.Zero(t, seen)
}

func TestHistoryLoadContinuesSequence(t *testing.T) {
	h := NewHistory(2)
	h.Load([]DecisionRecord{{Seq: 10, Selected: "a"}, {Seq: 11, Selected: "b"}, {Seq: 12, Selected: "c"}})
	require.Equal(t, 2, h.Len())
	assert.Equal(t, "b", h.Records()[0].Selected)

	rec := h.Append(DecisionRecord{Selected: "d"})
	assert.Equal(t, uint64(13), rec.Seq)
}
