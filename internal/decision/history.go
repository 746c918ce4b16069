package decision

import (
	"sync"
	"time"

	"github.com/talgya/npc-cognition/internal/phi"
	"github.com/talgya/npc-cognition/internal/stimulus"
	"github.com/talgya/npc-cognition/internal/tools"
)

// ToolWeight shows how one tool's final weight was built.
type ToolWeight struct {
	Tool        string  `json:"tool"`
	Base        float64 `json:"base"`
	Personality float64 `json:"personality"` // multiplier from trait sensitivities
	Quirked     float64 `json:"quirked"`     // weight after quirk effects
	Damping     float64 `json:"damping"`     // history multiplier
	Final       float64 `json:"final"`
	Fallback    bool    `json:"fallback,omitempty"`
}

// DecisionRecord is one entry of a character's decision history.
type DecisionRecord struct {
	Seq       uint64                       `json:"seq"`
	Tick      uint64                       `json:"tick"`
	Timestamp time.Time                    `json:"timestamp"`
	Stimulus  stimulus.InterpretedStimulus `json:"stimulus"`
	Weights   []ToolWeight                 `json:"weights"`
	Selected  string                       `json:"selected"`
	Result    tools.ActionResult           `json:"result"`
	Failed    bool                         `json:"failed,omitempty"`
	Error     string                       `json:"error,omitempty"`
}

func (r DecisionRecord) clone() DecisionRecord {
	out := r
	out.Weights = append([]ToolWeight(nil), r.Weights...)
	if r.Result.Params != nil {
		out.Result.Params = make(map[string]string, len(r.Result.Params))
		for k, v := range r.Result.Params {
			out.Result.Params[k] = v
		}
	}
	return out
}

// History is a bounded, append-only log of decisions kept in a ring buffer.
// Only the owning character's cycle appends; the lock lets observers read
// while a cycle runs.
type History struct {
	mu      sync.RWMutex
	buf     []DecisionRecord
	start   int // index of the oldest record
	n       int
	nextSeq uint64
}

// NewHistory creates a history retaining up to capacity records. A capacity
// below 1 uses phi.HistoryWindow.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = phi.HistoryWindow
	}
	return &History{buf: make([]DecisionRecord, capacity), nextSeq: 1}
}

// Append stores a copy of rec, assigning the next sequence number, and
// returns the stored copy. The oldest record is evicted when full.
func (h *History) Append(rec DecisionRecord) DecisionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec = rec.clone()
	rec.Seq = h.nextSeq
	h.nextSeq++
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = rec
		h.n++
	} else {
		h.buf[h.start] = rec
		h.start = (h.start + 1) % len(h.buf)
	}
	return rec.clone()
}

// Load replaces the contents with previously persisted records, oldest first.
// Sequence numbers are kept and new appends continue after the last one.
func (h *History) Load(records []DecisionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(records) > len(h.buf) {
		records = records[len(records)-len(h.buf):]
	}
	h.start, h.n = 0, 0
	for i := range h.buf {
		h.buf[i] = DecisionRecord{}
	}
	for _, r := range records {
		h.buf[h.n] = r.clone()
		h.n++
		if r.Seq >= h.nextSeq {
			h.nextSeq = r.Seq + 1
		}
	}
}

// Len returns the number of retained records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

// Cap returns the retention window.
func (h *History) Cap() int { return len(h.buf) }

// Records returns copies of all retained records, oldest first.
func (h *History) Records() []DecisionRecord {
	return h.Recent(h.Cap())
}

// Recent returns copies of the last k records, oldest first.
func (h *History) Recent(k int) []DecisionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if k > h.n {
		k = h.n
	}
	if k <= 0 {
		return nil
	}
	out := make([]DecisionRecord, 0, k)
	for i := h.n - k; i < h.n; i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)].clone())
	}
	return out
}

// Last returns the most recent record.
func (h *History) Last() (DecisionRecord, bool) {
	recs := h.Recent(1)
	if len(recs) == 0 {
		return DecisionRecord{}, false
	}
	return recs[0], true
}

// SelectionCounts counts selections per tool over the last window records
// and returns the number of records examined.
func (h *History) SelectionCounts(window int) (map[string]int, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if window > h.n {
		window = h.n
	}
	counts := make(map[string]int)
	for i := h.n - window; i < h.n; i++ {
		counts[h.buf[(h.start+i)%len(h.buf)].Selected]++
	}
	return counts, window
}
