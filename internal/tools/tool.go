// Package tools defines the action capability interface the decision engine
// selects from, the registry that holds tools, and the reference toolbox.
package tools

import (
	"context"

	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/stimulus"
)

// Kind classifies what an action asks the host to do.
type Kind string

const (
	KindSpeak   Kind = "speak"
	KindMove    Kind = "move"
	KindCombat  Kind = "combat"
	KindEmote   Kind = "emote"
	KindItem    Kind = "item"
	KindObserve Kind = "observe"
	KindIdle    Kind = "idle"
)

// ActionResult describes the effect the host should apply. The core never
// performs the effect itself.
type ActionResult struct {
	Tool      string            `json:"tool"`
	Kind      Kind              `json:"kind"`
	Target    string            `json:"target,omitempty"`
	Reference string            `json:"reference,omitempty"` // content key, e.g. "dialogue.insult.retort"
	Intensity float64           `json:"intensity"`           // 0.0–1.0
	Params    map[string]string `json:"params,omitempty"`
}

// Sensitivity declares how strongly a tool's weight follows a trait. Positive
// weights favour the tool for high trait values, negative for low ones.
type Sensitivity struct {
	Trait  personality.Trait `json:"trait"`
	Weight float64           `json:"weight"`
}

// Tool is a registrable action. BaseWeight must be pure; Execute may have side
// effects and may fail. Implementations must return promptly and should
// honour ctx cancellation.
type Tool interface {
	Name() string
	Sensitivities() []Sensitivity
	BaseWeight(s stimulus.InterpretedStimulus, p *personality.Profile) float64
	Execute(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile) (ActionResult, error)
}
