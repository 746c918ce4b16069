package personality

import (
	"fmt"
	"math"
)

// ContextDimension is a mutable situational modifier.
type ContextDimension uint8

const (
	Stress       ContextDimension = iota // 0 calm .. 1 panicked
	Mood                                 // -1 miserable .. 1 elated
	Familiarity                          // 0 strange place or people .. 1 home ground
	PowerDynamic                         // -1 subordinate .. 1 in charge
	Trust                                // -1 .. 1, held per relationship
	NumContextDims
)

var contextNames = [NumContextDims]string{"stress", "mood", "familiarity", "power_dynamic", "trust"}

var contextRanges = [NumContextDims]Bounds{
	Stress:       {0, 1},
	Mood:         {-1, 1},
	Familiarity:  {0, 1},
	PowerDynamic: {-1, 1},
	Trust:        {-1, 1},
}

func (d ContextDimension) String() string {
	if d >= NumContextDims {
		return fmt.Sprintf("context(%d)", uint8(d))
	}
	return contextNames[d]
}

// Range returns the valid range of the dimension.
func (d ContextDimension) Range() Bounds {
	if d >= NumContextDims {
		return Bounds{}
	}
	return contextRanges[d]
}

// ParseContextDimension maps a name to its ContextDimension.
func ParseContextDimension(name string) (ContextDimension, error) {
	for i, n := range contextNames {
		if n == name {
			return ContextDimension(i), nil
		}
	}
	return 0, fmt.Errorf("unknown context dimension %q", name)
}

// ContextModifiers is the mutable situational state of a character. The zero
// value is neutral: no stress, flat mood, no familiarity, equal footing and no
// opinion of anyone.
type ContextModifiers struct {
	Stress       float64            `json:"stress" yaml:"stress"`
	Mood         float64            `json:"mood" yaml:"mood"`
	Familiarity  float64            `json:"familiarity" yaml:"familiarity"`
	PowerDynamic float64            `json:"power_dynamic" yaml:"power_dynamic"`
	Trust        map[string]float64 `json:"trust,omitempty" yaml:"trust,omitempty"`
}

// Get returns a scalar dimension. Trust is per actor; use TrustToward.
func (c ContextModifiers) Get(d ContextDimension) float64 {
	switch d {
	case Stress:
		return c.Stress
	case Mood:
		return c.Mood
	case Familiarity:
		return c.Familiarity
	case PowerDynamic:
		return c.PowerDynamic
	}
	return 0
}

// TrustToward returns trust in actor; unknown actors are 0.
func (c ContextModifiers) TrustToward(actor string) float64 {
	if actor == "" {
		return 0
	}
	return c.Trust[actor]
}

func (c *ContextModifiers) set(d ContextDimension, v float64) {
	v = d.Range().Clamp(v)
	switch d {
	case Stress:
		c.Stress = v
	case Mood:
		c.Mood = v
	case Familiarity:
		c.Familiarity = v
	case PowerDynamic:
		c.PowerDynamic = v
	}
}

// Clone returns a deep copy.
func (c ContextModifiers) Clone() ContextModifiers {
	out := c
	if c.Trust != nil {
		out.Trust = make(map[string]float64, len(c.Trust))
		for k, v := range c.Trust {
			out.Trust[k] = v
		}
	}
	return out
}

// Clamped returns a copy with every value forced into its range.
func (c ContextModifiers) Clamped() ContextModifiers {
	out := c.Clone()
	for d := Stress; d < Trust; d++ {
		out.set(d, c.Get(d))
	}
	for k, v := range out.Trust {
		out.Trust[k] = contextRanges[Trust].Clamp(v)
	}
	return out
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
