package decision

import (
	"errors"
	"fmt"
)

// ErrEmptyRegistry matches every *EmptyRegistryError via errors.Is.
var ErrEmptyRegistry = errors.New("empty registry")

// EmptyRegistryError means no tool could be selected: nothing is registered,
// or every weight was zero and the default tool is missing.
type EmptyRegistryError struct {
	DefaultTool string
	Registered  int
}

func (e *EmptyRegistryError) Error() string {
	if e.Registered == 0 {
		return "decide: no tools registered"
	}
	return fmt.Sprintf("decide: all %d tool weights are zero and default tool %q is not registered", e.Registered, e.DefaultTool)
}

// Is lets errors.Is(err, ErrEmptyRegistry) succeed.
func (e *EmptyRegistryError) Is(target error) bool {
	return target == ErrEmptyRegistry
}

// ToolExecutionError wraps a failure, panic or timeout inside Tool.Execute.
type ToolExecutionError struct {
	Tool     string
	Err      error
	Panicked bool
}

func (e *ToolExecutionError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("tool %q panicked: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
