// Package phi provides the decision tuning constants derived from the golden ratio.
// Default weights, floors and strengths all derive from Φ.
package phi

import "math"

// Phi is the golden ratio.
const Phi = 1.6180339887498948

// Emanation constants derived from powers of Phi.
var (
	// Agnosis (Φ⁻³): noise, privation. ~24%.
	// Used as the floor of the history damping multiplier: no tool is ever
	// suppressed below this fraction of its weight by repetition alone.
	// Also the salience boost of a triggered trauma.
	Agnosis = math.Pow(Phi, -3) // 0.23606...

	// Psyche (Φ⁻²): the threshold of meaningful connection. ~38%.
	// Additive bonus of the built-in quirks and the default director event rate.
	Psyche = math.Pow(Phi, -2) // 0.38196...

	// Matter (Φ⁻¹): the fraction that persists through transformation. ~62%.
	// Default history damping strength.
	Matter = math.Pow(Phi, -1) // 0.61803...

	// Being (Φ¹): growth factor. Strong quirk multipliers.
	Being = Phi // 1.61803...
)

// Trait scale landmarks.
const (
	// Neutral is the centre of the unit trait scale.
	Neutral = 0.5
)

// Structural limits from the Fibonacci sequence.
const (
	// HistoryWindow is the default number of decisions a character remembers.
	HistoryWindow = 34

	// MaxQuirks is the most quirks a randomly generated character receives.
	MaxQuirks = 3
)
