// Package decision selects and executes a tool in response to an interpreted
// stimulus. Weights combine each tool's base weight with personality scaling,
// triggered quirks and history damping; the draw uses an injected random
// source so that a fixed seed reproduces every choice.
package decision

// State is the engine's position in a decision cycle.
type State uint32

const (
	StateIdle State = iota
	StateInterpreting
	StateWeighing
	StateSelecting
	StateExecuting
	StateRecorded
)

var stateNames = [...]string{"IDLE", "INTERPRETING", "WEIGHING", "SELECTING", "EXECUTING", "RECORDED"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}
