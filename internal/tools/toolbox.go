package tools

import (
	"context"
	"fmt"
	"math"

	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/stimulus"
)

// Reference tool names.
const (
	NameDialogueResponse = "dialogue_response"
	NameFlee             = "flee"
	NameAttack           = "attack"
	NameDefend           = "defend"
	NameThreaten         = "threaten"
	NameGreet            = "greet"
	NameOfferHelp        = "offer_help"
	NameExpressEmotion   = "express_emotion"
	NameScanForThreats   = "scan_for_threats"
	NameHide             = "hide"
	NameUseItem          = "use_item"
	NameIdle             = "idle"
)

// DefaultToolName is the fallback used when every weight is zero.
const DefaultToolName = NameIdle

// DefaultToolbox returns fresh instances of every reference tool, in the
// order they are registered by NewDefaultRegistry.
func DefaultToolbox() []Tool {
	return []Tool{
		NewDialogueResponse(),
		NewFlee(),
		NewAttack(),
		NewDefend(),
		NewThreaten(),
		NewGreet(),
		NewOfferHelp(),
		NewExpressEmotion(),
		NewScanForThreats(),
		NewHide(),
		NewUseItem(),
		NewIdle(),
	}
}

// affinity is the shared weighting of the reference tools: a base weight per
// schema, optional intent multipliers, and a salience factor. Busy stimuli
// raise reactive tools; calm tools rise as salience falls.
type affinity struct {
	name       string
	kind       Kind
	sens       []Sensitivity
	fallback   float64
	schemas    map[stimulus.Schema]float64
	intents    map[stimulus.Intent]float64
	needsActor bool
	calm       bool
}

func (a *affinity) Name() string { return a.name }

func (a *affinity) Sensitivities() []Sensitivity {
	out := make([]Sensitivity, len(a.sens))
	copy(out, a.sens)
	return out
}

func (a *affinity) BaseWeight(s stimulus.InterpretedStimulus, _ *personality.Profile) float64 {
	if a.needsActor && !s.HasActor() {
		return 0
	}
	w := a.fallback
	if v, ok := a.schemas[s.Schema]; ok {
		w = v
	}
	if m, ok := a.intents[s.Intent]; ok {
		w *= m
	}
	mean := s.Salience.Mean()
	if a.calm {
		w *= 1.5 - mean
	} else {
		w *= 0.5 + mean
	}
	return w
}

func (a *affinity) result(s stimulus.InterpretedStimulus, target, ref string, intensity float64, params map[string]string) ActionResult {
	if params == nil {
		params = make(map[string]string)
	}
	params["schema"] = string(s.Schema)
	params["intent"] = string(s.Intent)
	return ActionResult{
		Tool:      a.name,
		Kind:      a.kind,
		Target:    target,
		Reference: ref,
		Intensity: clamp01(intensity),
		Params:    params,
	}
}

func trait(p *personality.Profile, t personality.Trait, actor string) float64 {
	if p == nil {
		return 0.5
	}
	return p.UnitTrait(t, actor)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func awayFrom(s stimulus.InterpretedStimulus) string {
	if s.Actor != "" {
		return s.Actor
	}
	return s.Location
}

// DialogueResponse answers the actor. The line itself is authored content;
// the result names a reference keyed by schema and delivery style.
type DialogueResponse struct{ affinity }

func NewDialogueResponse() *DialogueResponse {
	return &DialogueResponse{affinity{
		name:     NameDialogueResponse,
		kind:     KindSpeak,
		sens:     []Sensitivity{{personality.Aggressiveness, 1}},
		fallback: 0.4,
		schemas: map[stimulus.Schema]float64{
			stimulus.SchemaInsult:              0.8,
			stimulus.SchemaThreat:              0.5,
			stimulus.SchemaDominanceAssertion:  0.6,
			stimulus.SchemaPraise:              0.7,
			stimulus.SchemaRequest:             0.7,
			stimulus.SchemaReassurance:         0.6,
			stimulus.SchemaFlirtation:          0.6,
			stimulus.SchemaDeception:           0.6,
			stimulus.SchemaBetrayal:            0.7,
			stimulus.SchemaGift:                0.5,
			stimulus.SchemaViolence:            0.2,
			stimulus.SchemaMystery:             0.3,
			stimulus.SchemaEnvironmentalChange: 0.1,
		},
		needsActor: true,
	}}
}

func (t *DialogueResponse) Execute(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	agg := trait(p, personality.Aggressiveness, s.Actor)
	style := "neutral"
	switch {
	case agg > 0.65:
		style = "retort"
	case trait(p, personality.Agreeableness, s.Actor) > 0.65:
		style = "placate"
	case trait(p, personality.Extraversion, s.Actor) < 0.35:
		style = "curt"
	}
	ref := fmt.Sprintf("dialogue.%s.%s", s.Schema, style)
	intensity := 0.5*agg + 0.5*s.Salience.Get(stimulus.DimEmotional)
	return t.result(s, s.Actor, ref, intensity, map[string]string{"style": style}), nil
}

// Flee moves away from the actor, or from the location of an actorless event.
type Flee struct{ affinity }

func NewFlee() *Flee {
	return &Flee{affinity{
		name:     NameFlee,
		kind:     KindMove,
		sens:     []Sensitivity{{personality.Neuroticism, 1}, {personality.Aggressiveness, -0.6}},
		fallback: 0.05,
		schemas: map[stimulus.Schema]float64{
			stimulus.SchemaViolence:            0.7,
			stimulus.SchemaThreat:              0.6,
			stimulus.SchemaDominanceAssertion:  0.3,
			stimulus.SchemaEnvironmentalChange: 0.3,
			stimulus.SchemaInsult:              0.2,
			stimulus.SchemaMystery:             0.15,
		},
		intents: map[stimulus.Intent]float64{stimulus.IntentCoerce: 1.3},
	}}
}

func (t *Flee) Execute(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	neur := trait(p, personality.Neuroticism, s.Actor)
	pace := "withdraw"
	if neur > 0.7 {
		pace = "sprint"
	}
	from := awayFrom(s)
	return t.result(s, from, "movement.flee."+pace, neur, map[string]string{"from": from, "pace": pace}), nil
}

// Attack strikes the actor with a strength following aggressiveness.
type Attack struct{ affinity }

func NewAttack() *Attack {
	return &Attack{affinity{
		name: NameAttack,
		kind: KindCombat,
		sens: []Sensitivity{
			{personality.Aggressiveness, 1},
			{personality.RiskTolerance, 0.5},
			{personality.Agreeableness, -0.5},
		},
		schemas: map[stimulus.Schema]float64{
			stimulus.SchemaViolence:           0.7,
			stimulus.SchemaThreat:             0.35,
			stimulus.SchemaBetrayal:           0.3,
			stimulus.SchemaInsult:             0.25,
			stimulus.SchemaDominanceAssertion: 0.25,
		},
		needsActor: true,
	}}
}

func (t *Attack) Execute(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	strength := trait(p, personality.Aggressiveness, s.Actor)
	style := "measured"
	switch {
	case strength < 0.3:
		style = "hesitant"
	case strength >= 0.7:
		style = "all_out"
	}
	return t.result(s, s.Actor, "combat.attack."+style, strength, map[string]string{"style": style}), nil
}

// Defend takes a guarded stance.
type Defend struct{ affinity }

func NewDefend() *Defend {
	return &Defend{affinity{
		name:     NameDefend,
		kind:     KindCombat,
		sens:     []Sensitivity{{personality.Conscientiousness, 0.5}, {personality.RiskTolerance, -0.3}},
		fallback: 0.02,
		schemas: map[stimulus.Schema]float64{
			stimulus.SchemaViolence:           0.6,
			stimulus.SchemaThreat:             0.5,
			stimulus.SchemaDominanceAssertion: 0.2,
		},
	}}
}

func (t *Defend) Execute(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	style := "cautious"
	switch {
	case trait(p, personality.Aggressiveness, s.Actor) > 0.6:
		style = "aggressive"
	case trait(p, personality.Conscientiousness, s.Actor) > 0.6:
		style = "balanced"
	}
	intensity := s.Salience.Mean()
	return t.result(s, awayFrom(s), "combat.defend."+style, intensity, map[string]string{"style": style}), nil
}

// Threaten intimidates the actor.
type Threaten struct{ affinity }

func NewThreaten() *Threaten {
	return &Threaten{affinity{
		name: NameThreaten,
		kind: KindSpeak,
		sens: []Sensitivity{
			{personality.Dominance, 1},
			{personality.Aggressiveness, 0.5},
			{personality.Agreeableness, -0.4},
		},
		fallback: 0.02,
		schemas: map[stimulus.Schema]float64{
			stimulus.SchemaDominanceAssertion: 0.45,
			stimulus.SchemaInsult:             0.35,
			stimulus.SchemaThreat:             0.3,
			stimulus.SchemaDeception:          0.2,
		},
		needsActor: true,
	}}
}

func (t *Threaten) Execute(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	dom := trait(p, personality.Dominance, s.Actor)
	kind := "verbal"
	switch {
	case dom > 0.7 && trait(p, personality.Aggressiveness, s.Actor) > 0.6:
		kind = "display_weapon"
	case s.Schema == stimulus.SchemaViolence || s.Schema == stimulus.SchemaThreat:
		kind = "physical"
	}
	return t.result(s, s.Actor, "combat.threaten."+kind, dom, map[string]string{"threat_type": kind}), nil
}

// Greet acknowledges the actor socially.
type Greet struct{ affinity }

func NewGreet() *Greet {
	return &Greet{affinity{
		name:     NameGreet,
		kind:     KindSpeak,
		sens:     []Sensitivity{{personality.Extraversion, 1}, {personality.Agreeableness, 0.5}},
		fallback: 0.05,
		schemas: map[stimulus.Schema]float64{
			stimulus.SchemaPraise:      0.4,
			stimulus.SchemaGift:        0.4,
			stimulus.SchemaReassurance: 0.3,
			stimulus.SchemaFlirtation:  0.3,
			stimulus.SchemaUnknown:     0.25,
			stimulus.SchemaRequest:     0.2,
		},
		intents:    map[stimulus.Intent]float64{stimulus.IntentBuildRapport: 1.25},
		needsActor: true,
	}}
}

func (t *Greet) Execute(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	warmth := trait(p, personality.Extraversion, s.Actor)
	style := "polite"
	switch {
	case warmth > 0.65:
		style = "warm"
	case warmth < 0.35:
		style = "nod"
	}
	return t.result(s, s.Actor, "social.greet."+style, warmth, map[string]string{"style": style}), nil
}

// OfferHelp volunteers assistance to the actor.
type OfferHelp struct{ affinity }

func NewOfferHelp() *OfferHelp {
	return &OfferHelp{affinity{
		name:     NameOfferHelp,
		kind:     KindSpeak,
		sens:     []Sensitivity{{personality.Agreeableness, 1}, {personality.Conscientiousness, 0.3}},
		fallback: 0.02,
		schemas: map[stimulus.Schema]float64{
			stimulus.SchemaRequest:     0.8,
			stimulus.SchemaAbandonment: 0.5,
			stimulus.SchemaInsecurity:  0.5,
			stimulus.SchemaSacrifice:   0.3,
			stimulus.SchemaCompassion:  0.3,
		},
		intents:    map[stimulus.Intent]float64{stimulus.IntentSeekHelp: 1.5},
		needsActor: true,
	}}
}

func (t *OfferHelp) Execute(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	return t.result(s, s.Actor, "social.offer_help."+string(s.Schema), trait(p, personality.Agreeableness, s.Actor), nil), nil
}

// ExpressEmotion shows a feeling chosen from the schema and temperament.
type ExpressEmotion struct{ affinity }

func NewExpressEmotion() *ExpressEmotion {
	return &ExpressEmotion{affinity{
		name:     NameExpressEmotion,
		kind:     KindEmote,
		sens:     []Sensitivity{{personality.Neuroticism, 0.6}, {personality.Extraversion, 0.6}},
		fallback: 0.15,
	}}
}

// BaseWeight follows emotional salience rather than the overall mean.
func (t *ExpressEmotion) BaseWeight(s stimulus.InterpretedStimulus, _ *personality.Profile) float64 {
	return t.fallback * (0.5 + 1.5*s.Salience.Get(stimulus.DimEmotional))
}

func (t *ExpressEmotion) Execute(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	emotion := emotionFor(s, p)
	intensity := 0.5*s.Salience.Get(stimulus.DimEmotional) + 0.5*trait(p, personality.Neuroticism, s.Actor)
	return t.result(s, s.Actor, "emote."+emotion, intensity, map[string]string{"emotion": emotion}), nil
}

func emotionFor(s stimulus.InterpretedStimulus, p *personality.Profile) string {
	switch s.Schema {
	case stimulus.SchemaInsult, stimulus.SchemaDominanceAssertion, stimulus.SchemaBetrayal:
		if trait(p, personality.Aggressiveness, s.Actor) >= trait(p, personality.Neuroticism, s.Actor) {
			return "anger"
		}
		return "hurt"
	case stimulus.SchemaThreat, stimulus.SchemaViolence:
		return "fear"
	case stimulus.SchemaPraise, stimulus.SchemaGift, stimulus.SchemaReassurance, stimulus.SchemaFlirtation:
		return "joy"
	case stimulus.SchemaDisgust:
		return "disgust"
	case stimulus.SchemaMystery:
		return "curiosity"
	case stimulus.SchemaEnvironmentalChange:
		return "surprise"
	case stimulus.SchemaAbandonment, stimulus.SchemaSacrifice:
		return "sadness"
	}
	return "unease"
}

// ScanForThreats looks around the current location.
type ScanForThreats struct{ affinity }

func NewScanForThreats() *ScanForThreats {
	return &ScanForThreats{affinity{
		name: NameScanForThreats,
		kind: KindObserve,
		sens: []Sensitivity{
			{personality.Conscientiousness, 0.5},
			{personality.Neuroticism, 0.4},
			{personality.RiskTolerance, -0.3},
		},
		fallback: 0.1,
		schemas: map[stimulus.Schema]float64{
			stimulus.SchemaEnvironmentalChange: 0.6,
			stimulus.SchemaMystery:             0.6,
			stimulus.SchemaThreat:              0.3,
			stimulus.SchemaUnknown:             0.3,
		},
	}}
}

func (t *ScanForThreats) Execute(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	focus := "look_for_threats"
	if s.Schema == stimulus.SchemaMystery || s.Schema == stimulus.SchemaEnvironmentalChange {
		focus = "investigate"
	}
	return t.result(s, s.Location, "observe.scan."+focus, trait(p, personality.Conscientiousness, s.Actor), map[string]string{"focus": focus}), nil
}

// Hide seeks cover nearby.
type Hide struct{ affinity }

func NewHide() *Hide {
	return &Hide{affinity{
		name: NameHide,
		kind: KindMove,
		sens: []Sensitivity{
			{personality.Neuroticism, 0.8},
			{personality.RiskTolerance, -0.6},
			{personality.Extraversion, -0.3},
		},
		schemas: map[stimulus.Schema]float64{
			stimulus.SchemaViolence:            0.35,
			stimulus.SchemaThreat:              0.35,
			stimulus.SchemaEnvironmentalChange: 0.15,
		},
	}}
}

func (t *Hide) Execute(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	return t.result(s, s.Location, "movement.hide", trait(p, personality.Neuroticism, s.Actor), map[string]string{"from": awayFrom(s)}), nil
}

// UseItem interacts with an object relevant to the stimulus.
type UseItem struct{ affinity }

func NewUseItem() *UseItem {
	return &UseItem{affinity{
		name:     NameUseItem,
		kind:     KindItem,
		sens:     []Sensitivity{{personality.Openness, 0.6}, {personality.Conscientiousness, 0.3}},
		fallback: 0.02,
		schemas: map[stimulus.Schema]float64{
			stimulus.SchemaGift:    0.6,
			stimulus.SchemaMystery: 0.3,
		},
	}}
}

func (t *UseItem) Execute(ctx context.Context, s stimulus.InterpretedStimulus, p *personality.Profile) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	return t.result(s, s.Actor, "item.use."+string(s.Schema), trait(p, personality.Openness, s.Actor), nil), nil
}

// Idle does nothing visible. It is the default fallback tool.
type Idle struct{ affinity }

func NewIdle() *Idle {
	return &Idle{affinity{
		name:     NameIdle,
		kind:     KindIdle,
		fallback: 0.1,
		calm:     true,
	}}
}

func (t *Idle) Execute(ctx context.Context, s stimulus.InterpretedStimulus, _ *personality.Profile) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	return t.result(s, "", "idle.wait", 0, nil), nil
}
