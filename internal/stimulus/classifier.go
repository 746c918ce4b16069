package stimulus

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Predicate decides whether a rule applies to an event.
type Predicate func(ev RawEvent, wc WorldContext) bool

// Rule maps a predicate to a (schema, intent) classification.
type Rule struct {
	Name   string
	Match  Predicate
	Schema Schema
	Intent Intent
}

// Classifier applies rules in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier over the given ordered rules.
func NewClassifier(rules ...Rule) *Classifier {
	c := &Classifier{}
	for _, r := range rules {
		c.Add(r)
	}
	return c
}

// Add appends a rule at the lowest priority.
func (c *Classifier) Add(r Rule) {
	if r.Schema == "" {
		r.Schema = SchemaUnknown
	}
	if r.Intent == "" {
		r.Intent = IntentNeutral
	}
	c.rules = append(c.rules, r)
}

// Rules returns the rule table in match order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify returns the schema and intent of the first matching rule and its
// name. No match yields (SchemaUnknown, IntentNeutral, "").
func (c *Classifier) Classify(ev RawEvent, wc WorldContext) (Schema, Intent, string) {
	for _, r := range c.rules {
		if r.Match != nil && r.Match(ev, wc) {
			return r.Schema, r.Intent, r.Name
		}
	}
	return SchemaUnknown, IntentNeutral, ""
}

// RuleSpec is the declarative (YAML) form of a Rule.
type RuleSpec struct {
	Name   string    `yaml:"name"`
	When   Condition `yaml:"when"`
	Schema Schema    `yaml:"schema"`
	Intent Intent    `yaml:"intent"`
}

// Condition is a conjunction: every populated field must hold.
type Condition struct {
	Types          []EventType       `yaml:"types,omitempty"`
	Channels       []Channel         `yaml:"channels,omitempty"`
	ContentPattern string            `yaml:"content_pattern,omitempty"` // case-insensitive regexp
	Attributes     map[string]string `yaml:"attributes,omitempty"`
	HasActor       *bool             `yaml:"has_actor,omitempty"`
	SentimentBelow *float64          `yaml:"sentiment_below,omitempty"` // toward the event actor
	SentimentAbove *float64          `yaml:"sentiment_above,omitempty"`
	TensionAbove   *float64          `yaml:"tension_above,omitempty"`
}

// Compile turns a spec into a Rule.
func (s RuleSpec) Compile() (Rule, error) {
	if s.Name == "" {
		return Rule{}, fmt.Errorf("rule without name")
	}
	if s.Schema == "" {
		return Rule{}, fmt.Errorf("rule %q: schema is required", s.Name)
	}

	var pattern *regexp.Regexp
	if s.When.ContentPattern != "" {
		re, err := regexp.Compile("(?i)" + s.When.ContentPattern)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: content pattern: %w", s.Name, err)
		}
		pattern = re
	}
	cond := s.When

	match := func(ev RawEvent, wc WorldContext) bool {
		if len(cond.Types) > 0 && !containsType(cond.Types, ev.Type) {
			return false
		}
		if len(cond.Channels) > 0 && !containsChannel(cond.Channels, ev.Channel) {
			return false
		}
		if cond.HasActor != nil && *cond.HasActor != (ev.Actor != "") {
			return false
		}
		for k, want := range cond.Attributes {
			if got, ok := ev.Attr(k); !ok || got != want {
				return false
			}
		}
		if cond.SentimentBelow != nil || cond.SentimentAbove != nil {
			rel, ok := wc.Relationship(ev.Actor)
			if !ok {
				return false
			}
			if cond.SentimentBelow != nil && rel.Sentiment >= *cond.SentimentBelow {
				return false
			}
			if cond.SentimentAbove != nil && rel.Sentiment <= *cond.SentimentAbove {
				return false
			}
		}
		if cond.TensionAbove != nil && wc.Tension <= *cond.TensionAbove {
			return false
		}
		if pattern != nil && !pattern.MatchString(ev.Content) {
			return false
		}
		return true
	}

	intent := s.Intent
	if intent == "" {
		intent = IntentNeutral
	}
	return Rule{Name: s.Name, Match: match, Schema: s.Schema, Intent: intent}, nil
}

// CompileRules compiles specs in order, failing on the first bad rule.
func CompileRules(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate rule %q", s.Name)
		}
		seen[s.Name] = true
		r, err := s.Compile()
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

type ruleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// ParseRules reads a YAML rule table (a top-level "rules:" list).
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return CompileRules(f.Rules)
}

// LoadRules reads a YAML rule table from disk.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// DefaultRuleSpecs is the built-in classification table, most specific first.
func DefaultRuleSpecs() []RuleSpec {
	yes := true
	hostile := -0.2
	return []RuleSpec{
		{
			Name:   "violent-contact",
			When:   Condition{Types: []EventType{TypePhysicalContact, TypeAction}, ContentPattern: `\b(hits?|punch(es)?|strikes?|stabs?|shoves?|slaps?|kicks?|attacks?)\b`},
			Schema: SchemaViolence, Intent: IntentAssertControl,
		},
		{
			Name:   "weapon-drawn",
			When:   Condition{Types: []EventType{TypeGesture, TypeAction}, ContentPattern: `\b(weapon|sword|knife|blade|dagger|axe|bow|raises? (a |his |her |their )?fist)\b`},
			Schema: SchemaThreat, Intent: IntentWarn,
		},
		{
			Name:   "explicit-threat",
			When:   Condition{Types: []EventType{TypeDialogue}, ContentPattern: `(i'?ll kill|kill you|you'?ll regret|or else|watch your back|i will hurt|you'?re dead)`},
			Schema: SchemaThreat, Intent: IntentCoerce,
		},
		{
			Name:   "insult",
			When:   Condition{Types: []EventType{TypeDialogue, TypeGesture}, ContentPattern: `\b(worthless|idiot|fool|pathetic|coward|useless|stupid|disgrace|spits)\b`},
			Schema: SchemaInsult, Intent: IntentHumiliate,
		},
		{
			Name:   "hostile-demand",
			When:   Condition{Types: []EventType{TypeDialogue}, ContentPattern: `\b(give me|hand (it )?over|right now|obey)\b`, SentimentBelow: &hostile},
			Schema: SchemaDominanceAssertion, Intent: IntentCoerce,
		},
		{
			Name:   "plea-for-help",
			When:   Condition{Types: []EventType{TypeDialogue}, HasActor: &yes, ContentPattern: `\b(help( me)?|save (me|us)|i need you)\b`},
			Schema: SchemaRequest, Intent: IntentSeekHelp,
		},
		{
			Name:   "apology",
			When:   Condition{Types: []EventType{TypeDialogue}, ContentPattern: `\b(sorry|forgive me|apologi[sz]e)\b`},
			Schema: SchemaReassurance, Intent: IntentAskForForgiveness,
		},
		{
			Name:   "gift",
			When:   Condition{Types: []EventType{TypeObjectInteraction}, Attributes: map[string]string{"action": "give"}},
			Schema: SchemaGift, Intent: IntentBuildRapport,
		},
		{
			Name:   "gift-offer",
			When:   Condition{Types: []EventType{TypeDialogue, TypeAction}, ContentPattern: `\b(a gift|for you|take this|hands you)\b`},
			Schema: SchemaGift, Intent: IntentBuildRapport,
		},
		{
			Name:   "praise",
			When:   Condition{Types: []EventType{TypeDialogue}, ContentPattern: `\b(well done|thank(s| you)|brilliant|brave|good job|impressive)\b`},
			Schema: SchemaPraise, Intent: IntentBuildRapport,
		},
		{
			Name:   "affection",
			When:   Condition{Types: []EventType{TypeDialogue, TypeGesture}, ContentPattern: `\b(love you|missed you|beautiful|winks?)\b`},
			Schema: SchemaFlirtation, Intent: IntentExpressLove,
		},
		{
			Name:   "request",
			When:   Condition{Types: []EventType{TypeDialogue}, ContentPattern: `\b(could you|would you|can you|will you)\b`},
			Schema: SchemaRequest, Intent: IntentNeutral,
		},
		{
			Name:   "strange-sight",
			When:   Condition{ContentPattern: `\b(strange|mysterious|eerie|unexplained)\b`},
			Schema: SchemaMystery, Intent: IntentNeutral,
		},
		{
			Name:   "environment-change",
			When:   Condition{Types: []EventType{TypeEnvironment}},
			Schema: SchemaEnvironmentalChange, Intent: IntentNeutral,
		},
	}
}

// DefaultRules compiles the built-in table. The table is static and covered
// by tests, so a compile failure is a programming error.
func DefaultRules() []Rule {
	rules, err := CompileRules(DefaultRuleSpecs())
	if err != nil {
		panic(fmt.Sprintf("stimulus: default rules: %v", err))
	}
	return rules
}

func containsType(list []EventType, t EventType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsChannel(list []Channel, c Channel) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}
