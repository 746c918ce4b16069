package stimulus

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Dimension names a salience axis. The set is fixed per deployment by what
// the SalienceModel registers; the engine never hardcodes it.
type Dimension string

const (
	DimEmotional    Dimension = "emotional"
	DimRelationship Dimension = "relationship"
	DimNarrative    Dimension = "narrative"
	DimExistential  Dimension = "existential"
	DimMoral        Dimension = "moral"
)

// Salience is an immutable, ordered mapping from dimension to magnitude in [0, 1].
type Salience struct {
	dims   []Dimension
	values map[Dimension]float64
}

// NewSalience builds a Salience from dimension/value pairs in the given order.
// Values are clamped to [0, 1]; NaN becomes 0.
func NewSalience(dims []Dimension, values map[Dimension]float64) Salience {
	s := Salience{
		dims:   make([]Dimension, 0, len(dims)),
		values: make(map[Dimension]float64, len(dims)),
	}
	for _, d := range dims {
		if _, dup := s.values[d]; dup {
			continue
		}
		s.dims = append(s.dims, d)
		s.values[d] = clamp01(values[d])
	}
	return s
}

// SalienceOf is a convenience for literal salience in tests and fixtures.
// Dimensions are ordered as given: SalienceOf(DimEmotional, 0.9, DimNarrative, 0.4).
func SalienceOf(pairs ...any) Salience {
	var dims []Dimension
	values := make(map[Dimension]float64)
	for i := 0; i+1 < len(pairs); i += 2 {
		d, ok := pairs[i].(Dimension)
		if !ok {
			continue
		}
		v, ok := pairs[i+1].(float64)
		if !ok {
			continue
		}
		dims = append(dims, d)
		values[d] = v
	}
	return NewSalience(dims, values)
}

// Get returns the magnitude of a dimension, 0 when the dimension is absent.
func (s Salience) Get(d Dimension) float64 {
	return s.values[d]
}

// Dimensions returns the scored dimensions in registration order.
func (s Salience) Dimensions() []Dimension {
	out := make([]Dimension, len(s.dims))
	copy(out, s.dims)
	return out
}

// Mean returns the overall salience score: the mean over scored dimensions.
func (s Salience) Mean() float64 {
	if len(s.dims) == 0 {
		return 0
	}
	total := 0.0
	for _, d := range s.dims {
		total += s.values[d]
	}
	return total / float64(len(s.dims))
}

// Adjusted returns a copy with f applied to dimension d. Unscored dimensions
// are left out; the result is clamped to [0, 1].
func (s Salience) Adjusted(d Dimension, f func(float64) float64) Salience {
	if _, ok := s.values[d]; !ok {
		return s
	}
	values := s.Map()
	values[d] = f(values[d])
	return NewSalience(s.dims, values)
}

// Map returns a copy of the dimension values.
func (s Salience) Map() map[Dimension]float64 {
	out := make(map[Dimension]float64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Equal reports whether two saliences have the same dimensions, order and values.
func (s Salience) Equal(o Salience) bool {
	if len(s.dims) != len(o.dims) {
		return false
	}
	for i, d := range s.dims {
		if o.dims[i] != d || o.values[d] != s.values[d] {
			return false
		}
	}
	return true
}

type salienceEntry struct {
	Dimension Dimension `json:"dimension"`
	Value     float64   `json:"value"`
}

// MarshalJSON encodes salience as an ordered list of entries.
func (s Salience) MarshalJSON() ([]byte, error) {
	entries := make([]salienceEntry, 0, len(s.dims))
	for _, d := range s.dims {
		entries = append(entries, salienceEntry{Dimension: d, Value: s.values[d]})
	}
	return json.Marshal(entries)
}

// UnmarshalJSON decodes the ordered entry list written by MarshalJSON.
func (s *Salience) UnmarshalJSON(data []byte) error {
	var entries []salienceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	dims := make([]Dimension, 0, len(entries))
	values := make(map[Dimension]float64, len(entries))
	for _, e := range entries {
		dims = append(dims, e.Dimension)
		values[e.Dimension] = e.Value
	}
	*s = NewSalience(dims, values)
	return nil
}

// ScoreFunc scores one dimension. Returning ok=false means the event carries
// no data for the dimension; the model records 0 rather than failing.
type ScoreFunc func(ev RawEvent, wc WorldContext) (score float64, ok bool)

// SalienceModel scores every registered dimension independently.
type SalienceModel struct {
	dims    []Dimension
	scorers map[Dimension]ScoreFunc
}

// NewSalienceModel returns an empty model.
func NewSalienceModel() *SalienceModel {
	return &SalienceModel{scorers: make(map[Dimension]ScoreFunc)}
}

// DefaultSalienceModel registers the five standard dimensions.
func DefaultSalienceModel() *SalienceModel {
	m := NewSalienceModel()
	m.Register(DimEmotional, ScoreEmotional)
	m.Register(DimRelationship, ScoreRelationship)
	m.Register(DimNarrative, ScoreNarrative)
	m.Register(DimExistential, AttributeScore("existential"))
	m.Register(DimMoral, AttributeScore("moral"))
	return m
}

// Register adds or replaces the scorer for a dimension. New dimensions are
// appended to the scoring order.
func (m *SalienceModel) Register(d Dimension, fn ScoreFunc) {
	if _, ok := m.scorers[d]; !ok {
		m.dims = append(m.dims, d)
	}
	m.scorers[d] = fn
}

// Restrict keeps only the listed dimensions, in the listed order. Unknown
// names are ignored and returned so the caller can report them.
func (m *SalienceModel) Restrict(dims []Dimension) (unknown []Dimension) {
	kept := make([]Dimension, 0, len(dims))
	scorers := make(map[Dimension]ScoreFunc, len(dims))
	for _, d := range dims {
		fn, ok := m.scorers[d]
		if !ok {
			unknown = append(unknown, d)
			continue
		}
		if _, dup := scorers[d]; dup {
			continue
		}
		kept = append(kept, d)
		scorers[d] = fn
	}
	m.dims = kept
	m.scorers = scorers
	return unknown
}

// Dimensions returns the dimensions in scoring order.
func (m *SalienceModel) Dimensions() []Dimension {
	out := make([]Dimension, len(m.dims))
	copy(out, m.dims)
	return out
}

// Score computes every dimension for an event.
func (m *SalienceModel) Score(ev RawEvent, wc WorldContext) Salience {
	values := make(map[Dimension]float64, len(m.dims))
	for _, d := range m.dims {
		v, ok := m.scorers[d](ev, wc)
		if !ok {
			v = 0
		}
		values[d] = v
	}
	return NewSalience(m.dims, values)
}

// AttributeScore reads a numeric event attribute as the dimension score.
func AttributeScore(key string) ScoreFunc {
	return func(ev RawEvent, _ WorldContext) (float64, bool) {
		return numericAttr(ev, key)
	}
}

// ScoreEmotional uses the declared "intensity" attribute when present,
// otherwise reads emphasis off the content: exclamation marks and shouting.
func ScoreEmotional(ev RawEvent, _ WorldContext) (float64, bool) {
	if v, ok := numericAttr(ev, "intensity"); ok {
		return v, true
	}
	if strings.TrimSpace(ev.Content) == "" {
		return 0, false
	}

	exclaims := float64(strings.Count(ev.Content, "!"))
	letters, upper := 0, 0
	for _, r := range ev.Content {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	shout := 0.0
	if letters >= 4 {
		shout = float64(upper) / float64(letters)
	}

	score := 0.2 + exclaims*0.15 + shout*0.5
	if ev.Type == TypePhysicalContact {
		score += 0.3
	}
	return score, true
}

// ScoreRelationship weighs how much the event's actor matters to the
// perceiver: strong feelings either way and high importance both raise it.
func ScoreRelationship(ev RawEvent, wc WorldContext) (float64, bool) {
	rel, ok := wc.Relationship(ev.Actor)
	if !ok {
		return 0, false
	}
	return 0.5*math.Abs(rel.Sentiment) + 0.5*rel.Importance, true
}

// ScoreNarrative combines scene tension, an explicit "narrative" attribute
// and the strongest active story beat tagged on the event.
func ScoreNarrative(ev RawEvent, wc WorldContext) (float64, bool) {
	score, found := numericAttr(ev, "narrative")
	if beat, ok := ev.Attr("beat"); ok {
		if w, ok := wc.StoryBeats[beat]; ok {
			score = math.Max(score, w)
			found = true
		}
	}
	if wc.Tension > 0 {
		score = math.Max(score, wc.Tension*0.8)
		found = true
	}
	return score, found
}

func numericAttr(ev RawEvent, key string) (float64, bool) {
	raw, ok := ev.Attr(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
