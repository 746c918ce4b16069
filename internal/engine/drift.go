package engine

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/npc-cognition/internal/entropy"
	"github.com/talgya/npc-cognition/internal/phi"
)

// driftFrequency is how fast the ambient field changes per sim-hour.
const driftFrequency = 0.05

// Drift produces slow, smooth ambient pressure on mood, stress and scene
// tension from simplex noise. Each character samples its own row of the
// field so neighbours do not move in lockstep.
type Drift struct {
	mood    opensimplex.Noise
	stress  opensimplex.Noise
	tension opensimplex.Noise
	rate    float64
}

// NewDrift creates the noise fields for seed.
func NewDrift(seed int64) *Drift {
	return &Drift{
		mood:    opensimplex.NewNormalized(entropy.Derive(seed, "drift/mood")),
		stress:  opensimplex.NewNormalized(entropy.Derive(seed, "drift/stress")),
		tension: opensimplex.NewNormalized(entropy.Derive(seed, "drift/tension")),
		rate:    phi.Agnosis,
	}
}

// Targets returns where mood and stress are being pulled for the character
// in row at the given tick. Mood lies in [-1, 1], stress in [0, 0.5].
func (d *Drift) Targets(row int, tick uint64) (mood, stress float64) {
	x := float64(tick) / TicksPerSimHour * driftFrequency
	y := float64(row) * 7.3
	mood = 2*d.mood.Eval2(x, y) - 1
	stress = 0.5 * d.stress.Eval2(x, y)
	return mood, stress
}

// Deltas returns the step toward the targets from the current values.
func (d *Drift) Deltas(row int, tick uint64, mood, stress float64) (dMood, dStress float64) {
	tm, ts := d.Targets(row, tick)
	return (tm - mood) * d.rate, (ts - stress) * d.rate
}

// Tension returns the scene tension at tick, in [0, 1).
func (d *Drift) Tension(tick uint64) float64 {
	return d.tension.Eval2(float64(tick)/TicksPerSimHour*driftFrequency, 0)
}
