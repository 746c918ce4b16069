package stimulus

import (
	"errors"
	"fmt"
)

// ErrMalformedEvent matches every *MalformedEventError via errors.Is.
var ErrMalformedEvent = errors.New("malformed event")

// MalformedEventError reports a raw event missing a field its type requires.
type MalformedEventError struct {
	EventID string
	Type    EventType
	Field   string
}

func (e *MalformedEventError) Error() string {
	id := e.EventID
	if id == "" {
		id = "<no id>"
	}
	if e.Field == "" {
		return fmt.Sprintf("malformed event %s: unknown event type %q", id, e.Type)
	}
	return fmt.Sprintf("malformed event %s: %s event requires %s", id, e.Type, e.Field)
}

// Is lets errors.Is(err, ErrMalformedEvent) succeed.
func (e *MalformedEventError) Is(target error) bool {
	return target == ErrMalformedEvent
}
