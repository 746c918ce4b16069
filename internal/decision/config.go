package decision

import (
	"fmt"
	"math"

	"github.com/talgya/npc-cognition/internal/phi"
	"github.com/talgya/npc-cognition/internal/tools"
)

// Config tunes the weighting pipeline.
type Config struct {
	// DefaultTool is selected with weight 1 when every weight is zero.
	DefaultTool string

	// Window is how many recent records history damping looks at.
	Window int

	// DampingStrength scales the penalty: multiplier = 1 - strength*frequency.
	DampingStrength float64

	// DampingFloor is the smallest damping multiplier; repetition alone never
	// removes a tool.
	DampingFloor float64

	// Sensitivities overrides a tool's declared trait sensitivities by name.
	Sensitivities map[string][]tools.Sensitivity
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		DefaultTool:     tools.DefaultToolName,
		Window:          phi.HistoryWindow,
		DampingStrength: phi.Matter,
		DampingFloor:    phi.Agnosis,
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.DefaultTool == "" {
		return fmt.Errorf("decision config: default tool is required")
	}
	if c.Window < 1 {
		return fmt.Errorf("decision config: window must be at least 1, got %d", c.Window)
	}
	if !finite(c.DampingStrength) || c.DampingStrength < 0 {
		return fmt.Errorf("decision config: damping strength must be finite and non-negative")
	}
	if !finite(c.DampingFloor) || c.DampingFloor < 0 || c.DampingFloor > 1 {
		return fmt.Errorf("decision config: damping floor must be within [0, 1]")
	}
	for name, sens := range c.Sensitivities {
		for _, s := range sens {
			if !finite(s.Weight) {
				return fmt.Errorf("decision config: sensitivity %s/%s must be finite", name, s.Trait)
			}
		}
	}
	return nil
}

// SensitivitiesFor returns the trait sensitivities the engine applies to t:
// the configured override when present, otherwise the tool's own.
func (c Config) SensitivitiesFor(t tools.Tool) []tools.Sensitivity {
	if s, ok := c.Sensitivities[t.Name()]; ok {
		return s
	}
	return t.Sensitivities()
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
