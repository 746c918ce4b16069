// Package personality holds a character's persistent personality: a fixed
// baseline trait vector, mutable context modifiers and a list of quirks.
// Effective traits combine the two through a template of per-trait
// sensitivities and are always clamped to the trait's bounds.
package personality

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/npc-cognition/internal/phi"
)

// Trait is one of the closed set of personality dimensions.
type Trait uint8

const (
	Aggressiveness    Trait = iota // Fight vs flight
	Extraversion                   // Social engagement vs reserve
	Neuroticism                    // Volatility vs emotional stability
	Openness                       // Curiosity vs caution
	Conscientiousness              // Methodical vs spontaneous
	Agreeableness                  // Cooperative vs competitive
	Dominance                      // Leading vs following
	RiskTolerance                  // Bold vs cautious
	NumTraits
)

var traitNames = [NumTraits]string{
	"aggressiveness",
	"extraversion",
	"neuroticism",
	"openness",
	"conscientiousness",
	"agreeableness",
	"dominance",
	"risk_tolerance",
}

func (t Trait) String() string {
	if t >= NumTraits {
		return fmt.Sprintf("trait(%d)", uint8(t))
	}
	return traitNames[t]
}

// ParseTrait maps a trait name to its Trait.
func ParseTrait(name string) (Trait, error) {
	for i, n := range traitNames {
		if n == name {
			return Trait(i), nil
		}
	}
	return 0, fmt.Errorf("unknown trait %q", name)
}

// AllTraits returns every trait in enum order.
func AllTraits() []Trait {
	out := make([]Trait, NumTraits)
	for i := range out {
		out[i] = Trait(i)
	}
	return out
}

// TraitVector holds one value per trait, indexed by Trait.
type TraitVector [NumTraits]float64

// NeutralVector returns a vector with every trait at the midpoint of the
// unit range. Templates with other bounds use Template.Neutral.
func NeutralVector() TraitVector {
	var v TraitVector
	for i := range v {
		v[i] = phi.Neutral
	}
	return v
}

// Vector builds a TraitVector from the given values; unset traits are neutral.
func Vector(values map[Trait]float64) TraitVector {
	v := NeutralVector()
	for t, x := range values {
		if t < NumTraits {
			v[t] = x
		}
	}
	return v
}

// Map returns the vector keyed by trait name.
func (v TraitVector) Map() map[string]float64 {
	m := make(map[string]float64, NumTraits)
	for i, x := range v {
		m[traitNames[i]] = x
	}
	return m
}

func vectorFromNames(m map[string]float64) (TraitVector, error) {
	v := NeutralVector()
	for name, x := range m {
		t, err := ParseTrait(name)
		if err != nil {
			return v, err
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return v, fmt.Errorf("trait %s: value must be finite", name)
		}
		v[t] = x
	}
	return v, nil
}

// MarshalJSON encodes the vector as an object keyed by trait name.
func (v TraitVector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Map())
}

// UnmarshalJSON decodes an object keyed by trait name. Missing traits are neutral.
func (v *TraitVector) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out, err := vectorFromNames(m)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// MarshalYAML encodes the vector as a mapping keyed by trait name.
func (v TraitVector) MarshalYAML() (interface{}, error) {
	return v.Map(), nil
}

// UnmarshalYAML decodes a mapping keyed by trait name.
func (v *TraitVector) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]float64
	if err := node.Decode(&m); err != nil {
		return err
	}
	out, err := vectorFromNames(m)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// String renders the vector in enum order, e.g. "aggressiveness=0.90 ...".
func (v TraitVector) String() string {
	parts := make([]string, 0, NumTraits)
	for i, x := range v {
		parts = append(parts, fmt.Sprintf("%s=%.2f", traitNames[i], x))
	}
	return strings.Join(parts, " ")
}

// Bounds is the closed range a trait may take.
type Bounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// UnitBounds is the default [0, 1] trait range.
var UnitBounds = Bounds{Min: 0, Max: 1}

// Clamp forces x into the range. NaN maps to Min.
func (b Bounds) Clamp(x float64) float64 {
	if math.IsNaN(x) || x < b.Min {
		return b.Min
	}
	if x > b.Max {
		return b.Max
	}
	return x
}

// Mid returns the centre of the range.
func (b Bounds) Mid() float64 { return (b.Min + b.Max) / 2 }

// Unit rescales x from the range onto [0, 1]. A zero-width range maps
// everything to 0.5.
func (b Bounds) Unit(x float64) float64 {
	if b.Max == b.Min {
		return phi.Neutral
	}
	return (b.Clamp(x) - b.Min) / (b.Max - b.Min)
}

// FromUnit maps u in [0, 1] onto the range.
func (b Bounds) FromUnit(u float64) float64 {
	return b.Clamp(b.Min + u*(b.Max-b.Min))
}

// Contains reports whether x lies in the range.
func (b Bounds) Contains(x float64) bool {
	return x >= b.Min && x <= b.Max
}

// Validate rejects empty or non-finite ranges.
func (b Bounds) Validate() error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) {
		return fmt.Errorf("bounds must be finite")
	}
	if b.Min > b.Max {
		return fmt.Errorf("bounds min %.3f exceeds max %.3f", b.Min, b.Max)
	}
	return nil
}
