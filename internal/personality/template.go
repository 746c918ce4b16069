package personality

import (
	"fmt"
	"math"
)

// Template fixes the shape of a personality at creation: the valid range of
// every trait and how strongly each context dimension moves each trait.
// Templates are shared between profiles and must not change once in use.
type Template struct {
	Bounds      [NumTraits]Bounds
	Sensitivity [NumTraits][NumContextDims]float64
}

// NewTemplate returns a template with unit bounds and no context sensitivity.
func NewTemplate() *Template {
	t := &Template{}
	for i := range t.Bounds {
		t.Bounds[i] = UnitBounds
	}
	return t
}

// DefaultTemplate returns unit bounds with the standard context sensitivities.
// Stress amplifies volatility and erodes discipline; good mood and trust open
// a character up.
func DefaultTemplate() *Template {
	t := NewTemplate()
	t.Sensitivity[Neuroticism][Stress] = 0.3
	t.Sensitivity[Aggressiveness][Stress] = 0.15
	t.Sensitivity[Conscientiousness][Stress] = -0.2
	t.Sensitivity[RiskTolerance][Stress] = -0.1

	t.Sensitivity[Extraversion][Mood] = 0.2
	t.Sensitivity[Agreeableness][Mood] = 0.15
	t.Sensitivity[Neuroticism][Mood] = -0.2

	t.Sensitivity[Extraversion][Familiarity] = 0.1
	t.Sensitivity[Openness][Familiarity] = 0.1
	t.Sensitivity[RiskTolerance][Familiarity] = 0.1

	t.Sensitivity[Dominance][PowerDynamic] = 0.2
	t.Sensitivity[Aggressiveness][PowerDynamic] = 0.1

	t.Sensitivity[Agreeableness][Trust] = 0.25
	t.Sensitivity[Extraversion][Trust] = 0.1
	t.Sensitivity[Neuroticism][Trust] = -0.1
	t.Sensitivity[Aggressiveness][Trust] = -0.1
	return t
}

// Neutral returns a vector with every trait at the midpoint of its bounds.
func (t *Template) Neutral() TraitVector {
	var v TraitVector
	for i, b := range t.Bounds {
		v[i] = b.Mid()
	}
	return v
}

// FromUnit maps a vector expressed on the unit range onto the template's
// bounds.
func (t *Template) FromUnit(u TraitVector) TraitVector {
	var v TraitVector
	for i, b := range t.Bounds {
		v[i] = b.FromUnit(u[i])
	}
	return v
}

// SetBounds replaces the range of a trait.
func (t *Template) SetBounds(tr Trait, b Bounds) error {
	if tr >= NumTraits {
		return fmt.Errorf("unknown trait %d", tr)
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("trait %s: %w", tr, err)
	}
	t.Bounds[tr] = b
	return nil
}

// SetSensitivity sets how strongly a context dimension moves a trait.
func (t *Template) SetSensitivity(tr Trait, d ContextDimension, coeff float64) error {
	if tr >= NumTraits {
		return fmt.Errorf("unknown trait %d", tr)
	}
	if d >= NumContextDims {
		return fmt.Errorf("unknown context dimension %d", d)
	}
	if !finite(coeff) {
		return fmt.Errorf("sensitivity %s/%s must be finite", tr, d)
	}
	t.Sensitivity[tr][d] = coeff
	return nil
}

// Validate checks every bound and coefficient.
func (t *Template) Validate() error {
	for i, b := range t.Bounds {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("trait %s: %w", Trait(i), err)
		}
	}
	for i := range t.Sensitivity {
		for j, c := range t.Sensitivity[i] {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return fmt.Errorf("sensitivity %s/%s must be finite", Trait(i), ContextDimension(j))
			}
		}
	}
	return nil
}

// Effective combines a baseline value with context for one trait, toward an
// optional actor, clamped to the trait's bounds.
func (t *Template) Effective(tr Trait, baseline float64, ctx ContextModifiers, actor string) float64 {
	v := baseline
	s := t.Sensitivity[tr]
	for d := Stress; d < Trust; d++ {
		v += s[d] * ctx.Get(d)
	}
	v += s[Trust] * ctx.TrustToward(actor)
	return t.Bounds[tr].Clamp(v)
}
