// Package stimulus turns raw simulation events into interpreted stimuli:
// an archetypal schema, a perceived intent and per-dimension salience.
// Interpretation is rule based and deterministic; randomness belongs to the
// decision layer, never to perception.
package stimulus

// EventType is the declared modality of a raw event.
type EventType string

const (
	TypeDialogue           EventType = "dialogue"
	TypeGesture            EventType = "gesture"
	TypeEnvironment        EventType = "environment"
	TypeAction             EventType = "action"
	TypeObjectInteraction  EventType = "object_interaction"
	TypePhysicalContact    EventType = "physical_contact"
	TypeInternalReflection EventType = "internal_reflection"
)

// Channel is the sense through which an event reached the character.
type Channel string

const (
	ChannelTextual     Channel = "textual"
	ChannelAuditory    Channel = "auditory"
	ChannelVisual      Channel = "visual"
	ChannelTactile     Channel = "tactile"
	ChannelEnvironment Channel = "environmental_event"
	ChannelGame        Channel = "game_event"
)

// Schema is an archetypal pattern applied to a stimulus. The set is closed
// per deployment but extensible: rule tables may name new schemas.
type Schema string

const (
	SchemaUnknown             Schema = "unknown"
	SchemaThreat              Schema = "threat"
	SchemaPraise              Schema = "praise"
	SchemaInsult              Schema = "insult"
	SchemaDeception           Schema = "deception"
	SchemaFlirtation          Schema = "flirtation"
	SchemaDominanceAssertion  Schema = "dominance_assertion"
	SchemaSubmission          Schema = "submission"
	SchemaBetrayal            Schema = "betrayal"
	SchemaReassurance         Schema = "reassurance"
	SchemaRequest             Schema = "request"
	SchemaViolence            Schema = "violence"
	SchemaCompassion          Schema = "compassion"
	SchemaDisgust             Schema = "disgust"
	SchemaMystery             Schema = "mystery"
	SchemaAbandonment         Schema = "abandonment"
	SchemaSacrifice           Schema = "sacrifice"
	SchemaInsecurity          Schema = "insecurity"
	SchemaGift                Schema = "gift"
	SchemaEnvironmentalChange Schema = "environmental_change"
)

// Intent is the perceived motive behind a stimulus.
type Intent string

const (
	IntentNeutral           Intent = "neutral"
	IntentProvoke           Intent = "provoke"
	IntentHumiliate         Intent = "humiliate"
	IntentTestLoyalty       Intent = "test_loyalty"
	IntentBuildRapport      Intent = "build_rapport"
	IntentWarn              Intent = "warn"
	IntentAssertControl     Intent = "assert_control"
	IntentEscapeBlame       Intent = "escape_blame"
	IntentSeekHelp          Intent = "seek_help"
	IntentExpressLove       Intent = "express_love"
	IntentAskForForgiveness Intent = "ask_for_forgiveness"
	IntentManipulate        Intent = "manipulate"
	IntentCoerce            Intent = "coerce"
)

// RawEvent is what the host simulation reports happened.
type RawEvent struct {
	ID         string            `json:"id" yaml:"id"`
	Type       EventType         `json:"type" yaml:"type"`
	Channel    Channel           `json:"channel,omitempty" yaml:"channel"`
	Content    string            `json:"content,omitempty" yaml:"content"`
	Actor      string            `json:"actor,omitempty" yaml:"actor"`
	Targets    []string          `json:"targets,omitempty" yaml:"targets"`
	Location   string            `json:"location,omitempty" yaml:"location"`
	Tick       uint64            `json:"tick" yaml:"tick"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes"`
}

// Attr returns a declared attribute and whether it was present.
func (e RawEvent) Attr(key string) (string, bool) {
	v, ok := e.Attributes[key]
	return v, ok
}

// Relationship is how the perceiving character regards another entity.
type Relationship struct {
	Sentiment  float64 `json:"sentiment" yaml:"sentiment"`   // -1.0 (hatred) to 1.0 (love)
	Importance float64 `json:"importance" yaml:"importance"` // 0.0 to 1.0
}

// WorldContext is the perceiving character's view of the world at the
// moment of the event. It is read-only input to interpretation.
type WorldContext struct {
	Tick          uint64                  `json:"tick"`
	Location      string                  `json:"location,omitempty"`
	Tension       float64                 `json:"tension"` // Scene tension, 0.0–1.0
	Relationships map[string]Relationship `json:"relationships,omitempty"`
	// StoryBeats flags narrative threads currently in play (e.g. "heist", "siege").
	StoryBeats map[string]float64 `json:"story_beats,omitempty"`

	// Perceiver describes the character doing the interpreting. Modifiers
	// read it; the classifier and salience model do not.
	Perceiver Perceiver `json:"perceiver"`
}

// Relationship returns the relationship toward actor, if known.
func (w WorldContext) Relationship(actor string) (Relationship, bool) {
	if actor == "" {
		return Relationship{}, false
	}
	r, ok := w.Relationships[actor]
	return r, ok
}

// InterpretedStimulus is the normalized perception package passed into the
// decision engine. Build one with Interpreter.Interpret or NewInterpreted;
// consumers treat it as read-only.
type InterpretedStimulus struct {
	EventID     string    `json:"event_id"`
	RawContent  string    `json:"raw_content"`
	Actor       string    `json:"actor,omitempty"`
	Type        EventType `json:"type"`
	Schema      Schema    `json:"schema"`
	Intent      Intent    `json:"intent"`
	Salience    Salience  `json:"salience"`
	Location    string    `json:"location,omitempty"`
	Tick        uint64    `json:"tick"`
	MatchedRule string    `json:"matched_rule,omitempty"`

	// TraumaTriggers lists the perceiver's traumas this stimulus touched.
	TraumaTriggers []TraumaTag `json:"trauma_triggers,omitempty"`
	// MemoryRefs are the IDs of earlier events the stimulus called to mind.
	MemoryRefs []string `json:"memory_references,omitempty"`
}

// NewInterpreted builds a stimulus directly, applying the schema/intent
// sentinels when either is empty. Hosts that classify upstream use this.
func NewInterpreted(ev RawEvent, schema Schema, intent Intent, salience Salience) InterpretedStimulus {
	if schema == "" {
		schema = SchemaUnknown
	}
	if intent == "" {
		intent = IntentNeutral
	}
	return InterpretedStimulus{
		EventID:    ev.ID,
		RawContent: ev.Content,
		Actor:      ev.Actor,
		Type:       ev.Type,
		Schema:     schema,
		Intent:     intent,
		Salience:   salience,
		Location:   ev.Location,
		Tick:       ev.Tick,
	}
}

// HasActor reports whether the stimulus originates from an identified entity.
func (s InterpretedStimulus) HasActor() bool {
	return s.Actor != ""
}
