package engine

import (
	"log/slog"
	"sync"
)

// Event categories.
const (
	CategoryDecision  = "decision"
	CategoryFailure   = "failure"
	CategoryMalformed = "malformed"
	CategoryStimulus  = "stimulus"
	CategoryContext   = "context"
	CategorySystem    = "system"
)

// maxEvents is how many events the log keeps.
const maxEvents = 1000

// subscriberBuffer is the per-subscriber channel size. Slow subscribers drop
// events rather than stall a tick.
const subscriberBuffer = 64

// Event is a notable occurrence in the simulation.
type Event struct {
	Tick        uint64         `json:"tick"`
	Description string         `json:"description"`
	Category    string         `json:"category"` // "decision", "failure", "stimulus", etc.
	Character   string         `json:"character,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// eventLog keeps the most recent events and fans new ones out to subscribers.
type eventLog struct {
	mu     sync.RWMutex
	events []Event
	subs   map[int]chan Event
	nextID int
}

func newEventLog() *eventLog {
	return &eventLog{subs: make(map[int]chan Event)}
}

func (l *eventLog) emit(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
	if len(l.events) > maxEvents {
		l.events = append([]Event(nil), l.events[len(l.events)-maxEvents:]...)
	}
	for id, ch := range l.subs {
		select {
		case ch <- e:
		default:
			slog.Debug("subscriber behind, event dropped", "sub_id", id)
		}
	}
}

func (l *eventLog) recent(limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if limit > 0 && len(l.events) > limit {
		start = len(l.events) - limit
	}
	out := make([]Event, len(l.events)-start)
	copy(out, l.events[start:])
	return out
}

func (l *eventLog) subscribe() (int, <-chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	ch := make(chan Event, subscriberBuffer)
	l.subs[l.nextID] = ch
	return l.nextID, ch
}

func (l *eventLog) unsubscribe(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.subs[id]; ok {
		delete(l.subs, id)
		close(ch)
	}
}

// EmitEvent appends an event to the log and pushes it to every subscriber.
func (s *Simulation) EmitEvent(e Event) {
	s.log.emit(e)
}

// Events returns up to limit of the most recent events, oldest first.
// A limit of zero returns the whole log.
func (s *Simulation) Events(limit int) []Event {
	return s.log.recent(limit)
}

// Subscribe registers a listener for new events. The channel is closed by
// Unsubscribe.
func (s *Simulation) Subscribe() (int, <-chan Event) {
	return s.log.subscribe()
}

// Unsubscribe removes a listener and closes its channel.
func (s *Simulation) Unsubscribe(id int) {
	s.log.unsubscribe(id)
}
