package stimulus

import (
	"log/slog"
	"slices"
	"strings"
)

// Field names used in validation errors.
const (
	FieldActor   = "actor"
	FieldContent = "content"
	FieldType    = "type"
)

// requiredFields lists what each event type must carry. Types absent from the
// table are rejected.
var requiredFields = map[EventType][]string{
	TypeDialogue:           {FieldActor, FieldContent},
	TypeGesture:            {FieldActor},
	TypeAction:             {FieldActor},
	TypePhysicalContact:    {FieldActor},
	TypeObjectInteraction:  {FieldActor},
	TypeEnvironment:        nil,
	TypeInternalReflection: nil,
}

// RequiredFields returns the fields an event type must carry and whether the
// type is known.
func RequiredFields(t EventType) ([]string, bool) {
	f, ok := requiredFields[t]
	return f, ok
}

// Validate checks an event against its type's required fields.
func Validate(ev RawEvent) error {
	fields, ok := requiredFields[ev.Type]
	if !ok {
		return &MalformedEventError{EventID: ev.ID, Type: ev.Type}
	}
	for _, f := range fields {
		switch f {
		case FieldActor:
			if strings.TrimSpace(ev.Actor) == "" {
				return &MalformedEventError{EventID: ev.ID, Type: ev.Type, Field: f}
			}
		case FieldContent:
			if strings.TrimSpace(ev.Content) == "" {
				return &MalformedEventError{EventID: ev.ID, Type: ev.Type, Field: f}
			}
		}
	}
	return nil
}

// Interpreter combines a classifier, a salience model and an ordered chain
// of modifiers. It holds no mutable state after construction and is safe for
// concurrent use.
type Interpreter struct {
	classifier *Classifier
	salience   *SalienceModel
	modifiers  []Modifier
}

// NewInterpreter creates an interpreter. Nil classifier and model fall back
// to the built-in rule table and salience model. Modifiers run in the order
// given.
func NewInterpreter(c *Classifier, m *SalienceModel, mods ...Modifier) *Interpreter {
	if c == nil {
		c = NewClassifier(DefaultRules()...)
	}
	if m == nil {
		m = DefaultSalienceModel()
	}
	return &Interpreter{classifier: c, salience: m, modifiers: slices.Clone(mods)}
}

// DefaultInterpreter uses the built-in rules, the five standard dimensions
// and the default modifiers.
func DefaultInterpreter() *Interpreter {
	return NewInterpreter(nil, nil, DefaultModifiers()...)
}

// Modifiers returns the names of the modifiers in application order.
func (in *Interpreter) Modifiers() []string {
	out := make([]string, len(in.modifiers))
	for i, m := range in.modifiers {
		out[i] = m.Name()
	}
	return out
}

// Dimensions returns the salience dimensions this interpreter scores.
func (in *Interpreter) Dimensions() []Dimension {
	return in.salience.Dimensions()
}

// Interpret validates, classifies and scores a raw event, then runs the
// modifier chain. The result depends only on (ev, wc).
func (in *Interpreter) Interpret(ev RawEvent, wc WorldContext) (InterpretedStimulus, error) {
	if err := Validate(ev); err != nil {
		slog.Debug("rejected malformed event", "event", ev.ID, "type", ev.Type, "error", err)
		return InterpretedStimulus{}, err
	}

	schema, intent, rule := in.classifier.Classify(ev, wc)
	sal := in.salience.Score(ev, wc)

	s := NewInterpreted(ev, schema, intent, sal)
	s.MatchedRule = rule
	for _, m := range in.modifiers {
		s = m.Modify(s, ev, wc)
	}

	slog.Debug("interpreted event",
		"event", ev.ID, "actor", ev.Actor, "schema", schema, "intent", intent,
		"rule", rule, "salience", s.Salience.Mean(), "traumas", len(s.TraumaTriggers))
	return s, nil
}
