package tools

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateTool matches every *DuplicateToolError via errors.Is.
var ErrDuplicateTool = errors.New("duplicate tool")

// DuplicateToolError reports a name collision at registration.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// Is lets errors.Is(err, ErrDuplicateTool) succeed.
func (e *DuplicateToolError) Is(target error) bool {
	return target == ErrDuplicateTool
}

// Registry holds tools by unique name, iterated in registration order.
// Registration normally finishes before decision cycles start; the lock keeps
// late registration safe against concurrent readers.
type Registry struct {
	mu     sync.RWMutex
	order  []Tool
	byName map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// NewDefaultRegistry returns a registry holding the reference toolbox.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range DefaultToolbox() {
		r.MustRegister(t)
	}
	return r
}

// Register adds a tool. A nameless tool or a name collision is an error.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("register tool: tool must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[t.Name()]; dup {
		return &DuplicateToolError{Name: t.Name()}
	}
	r.order = append(r.order, t)
	r.byName[t.Name()] = t
	return nil
}

// MustRegister is Register for setup code; it panics on error.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// All returns the tools in registration order.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	for i, t := range r.order {
		out[i] = t.Name()
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
