package engine

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/talgya/npc-cognition/internal/entropy"
	"github.com/talgya/npc-cognition/internal/stimulus"
)

// beat is a scripted happening the director can throw at a character.
type beat struct {
	Type       stimulus.EventType
	Channel    stimulus.Channel
	Content    string
	Attributes map[string]string
	Anonymous  bool // no actor: weather, sounds, the scene itself
}

// beats is the director's repertoire. Salience attributes are
// declared where the text alone undersells the moment.
var beats = []beat{
	{Type: stimulus.TypeDialogue, Channel: stimulus.ChannelAuditory, Content: "You're a worthless coward.", Attributes: map[string]string{"intensity": "0.7"}},
	{Type: stimulus.TypeDialogue, Channel: stimulus.ChannelAuditory, Content: "Hand it over right now, or else.", Attributes: map[string]string{"intensity": "0.8", "moral": "0.4"}},
	{Type: stimulus.TypeGesture, Channel: stimulus.ChannelVisual, Content: "draws a knife and steps closer"},
	{Type: stimulus.TypePhysicalContact, Channel: stimulus.ChannelTactile, Content: "shoves you against the wall", Attributes: map[string]string{"intensity": "0.8", "moral": "0.4"}},
	{Type: stimulus.TypeDialogue, Channel: stimulus.ChannelAuditory, Content: "Please, help me! They're coming!", Attributes: map[string]string{"narrative": "0.6", "moral": "0.7"}},
	{Type: stimulus.TypeDialogue, Channel: stimulus.ChannelAuditory, Content: "I'm sorry for what I said yesterday. Forgive me."},
	{Type: stimulus.TypeObjectInteraction, Channel: stimulus.ChannelVisual, Content: "holds out a small carved charm", Attributes: map[string]string{"action": "give", "item": "charm"}},
	{Type: stimulus.TypeDialogue, Channel: stimulus.ChannelAuditory, Content: "Well done, that was brave of you."},
	{Type: stimulus.TypeDialogue, Channel: stimulus.ChannelAuditory, Content: "Could you watch the gate for a while?"},
	{Type: stimulus.TypeGesture, Channel: stimulus.ChannelVisual, Content: "winks from across the room"},
	{Type: stimulus.TypeDialogue, Channel: stimulus.ChannelAuditory, Content: "Nice weather for the market today."},
	{Type: stimulus.TypeEnvironment, Channel: stimulus.ChannelEnvironment, Content: "A storm rolls in over the hills.", Anonymous: true},
	{Type: stimulus.TypeEnvironment, Channel: stimulus.ChannelAuditory, Content: "A strange humming comes from the old well.", Anonymous: true, Attributes: map[string]string{"narrative": "0.7", "existential": "0.5"}},
	{Type: stimulus.TypeEnvironment, Channel: stimulus.ChannelEnvironment, Content: "The lamps in the square gutter out.", Anonymous: true},
}

// stranger stands in as the actor when no other character is around.
const stranger = "stranger"

// Director generates scripted raw events for characters. Not safe for
// concurrent use; the simulation calls it from the tick goroutine only.
type Director struct {
	rng  *rand.Rand
	rate float64
}

// NewDirector creates a director whose choices derive from seed. rate is
// the chance per character per tick of a new event.
func NewDirector(seed int64, rate float64) *Director {
	return &Director{
		rng:  entropy.New(entropy.Derive(seed, "director")),
		rate: rate,
	}
}

// Roll reports whether a character receives an event this tick.
func (d *Director) Roll() bool {
	return d.rate > 0 && d.rng.Float64() < d.rate
}

// Next composes one event for the character named target. Actors are drawn
// from others, falling back to a stranger.
func (d *Director) Next(tick uint64, target string, others []string) stimulus.RawEvent {
	b := beats[d.rng.Intn(len(beats))]
	ev := stimulus.RawEvent{
		ID:      uuid.NewString(),
		Type:    b.Type,
		Channel: b.Channel,
		Content: b.Content,
		Targets: []string{target},
		Tick:    tick,
	}
	if !b.Anonymous {
		ev.Actor = stranger
		if len(others) > 0 {
			ev.Actor = others[d.rng.Intn(len(others))]
		}
	}
	if len(b.Attributes) > 0 {
		ev.Attributes = make(map[string]string, len(b.Attributes))
		for k, v := range b.Attributes {
			ev.Attributes[k] = v
		}
	}
	return ev
}
