package rule

import (
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
)

// Rule is a named, prioritized matcher that turns a (cause, effect) pair into
// relationship fields. Strategies are referenced by registered name so rules
// stay plain, serializable configuration.
type Rule struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	CausePattern   Pattern         `json:"cause_pattern"`
	EffectPattern  Pattern         `json:"effect_pattern"`
	Type           causal.Type     `json:"causality_type"`
	BaseStrength   causal.Strength `json:"base_strength"`
	BaseConfidence float64         `json:"base_confidence"`
	Window         Window          `json:"temporal_window"`

	Condition string `json:"condition,omitempty"`
	Impact    string `json:"impact_calculator,omitempty"`

	// RequiredContext keys are domain, source, location or department; both
	// events must carry the given value.
	RequiredContext map[string]string `json:"required_context,omitempty"`

	Tags     []string `json:"tags,omitempty"`
	Priority int      `json:"priority"`
}

// Pattern constrains one side of a rule. Zero fields are unconstrained.
type Pattern struct {
	Type       *event.Type     `json:"event_type,omitempty"`
	Severity   *event.Severity `json:"severity,omitempty"`
	Domain     string          `json:"domain,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
	Attributes map[string]any  `json:"attributes,omitempty"`
}

// Window bounds the lag from cause to effect in minutes; a nil max is unbounded
type Window struct {
	MinLagMinutes float64  `json:"min_lag_minutes"`
	MaxLagMinutes *float64 `json:"max_lag_minutes,omitempty"`
}

// Between builds a closed window
func Between(minLag, maxLag float64) Window {
	return Window{MinLagMinutes: minLag, MaxLagMinutes: &maxLag}
}

// TypePattern matches events of a single type
func TypePattern(t event.Type) Pattern {
	return Pattern{Type: &t}
}

// Contains reports whether lag falls inside the window. Negative lags never do.
func (w Window) Contains(lag float64) bool {
	if lag < 0 || lag < w.MinLagMinutes {
		return false
	}
	if w.MaxLagMinutes != nil && lag > *w.MaxLagMinutes {
		return false
	}
	return true
}

func (w Window) validate() *errors.AppError {
	if math.IsNaN(w.MinLagMinutes) || w.MinLagMinutes < 0 {
		return errors.NewValidationError("INVALID_WINDOW", "min lag must be non-negative").WithField("min_lag_minutes")
	}
	if w.MaxLagMinutes != nil && w.MinLagMinutes > *w.MaxLagMinutes {
		return errors.NewValidationError("INVALID_WINDOW",
			fmt.Sprintf("min lag %v exceeds max lag %v", w.MinLagMinutes, *w.MaxLagMinutes)).
			WithField("temporal_window")
	}
	return nil
}

// Matches evaluates the pattern against an event. A constrained attribute that
// the event does not carry is a mismatch.
func (p Pattern) Matches(e *event.Event) bool {
	if p.Type != nil && e.Type != *p.Type {
		return false
	}
	if p.Severity != nil && e.Severity != *p.Severity {
		return false
	}
	if p.Domain != "" && e.Context.Domain != p.Domain {
		return false
	}
	if len(p.Tags) > 0 && !slices.ContainsFunc(p.Tags, e.HasTag) {
		return false
	}
	for key, want := range p.Attributes {
		got, ok := e.Attributes[key]
		if !ok || !attributeEqual(got, want) {
			return false
		}
	}
	return true
}

func (p Pattern) validate(side string) *errors.AppError {
	if p.Type != nil && !p.Type.Valid() {
		return errors.NewValidationError("UNKNOWN_EVENT_TYPE",
			fmt.Sprintf("%s pattern has unknown event type %d", side, int(*p.Type))).
			WithField(side + "_pattern.event_type")
	}
	if p.Severity != nil && !p.Severity.Valid() {
		return errors.NewValidationError("UNKNOWN_SEVERITY",
			fmt.Sprintf("%s pattern has unknown severity %d", side, int(*p.Severity))).
			WithField(side + "_pattern.severity")
	}
	return nil
}

var contextFields = map[string]func(event.Context) string{
	"domain":     func(c event.Context) string { return c.Domain },
	"source":     func(c event.Context) string { return c.Source },
	"location":   func(c event.Context) string { return c.Location },
	"department": func(c event.Context) string { return c.Department },
}

func (r *Rule) contextMatches(cause, effect *event.Event) bool {
	for key, want := range r.RequiredContext {
		get := contextFields[key]
		if get(cause.Context) != want || get(effect.Context) != want {
			return false
		}
	}
	return true
}

// Validate checks the rule's static configuration
func (r *Rule) Validate() error {
	if r.Name == "" {
		return errors.NewValidationError("INVALID_RULE", "rule name is required").WithField("name")
	}
	if err := r.CausePattern.validate("cause"); err != nil {
		return err.WithDetails(map[string]interface{}{"rule": r.Name})
	}
	if err := r.EffectPattern.validate("effect"); err != nil {
		return err.WithDetails(map[string]interface{}{"rule": r.Name})
	}
	if !r.Type.Valid() {
		return errors.NewValidationError("INVALID_RULE",
			fmt.Sprintf("rule %s has unknown causality type", r.Name)).WithField("causality_type")
	}
	if !r.BaseStrength.Valid() {
		return errors.NewValidationError("INVALID_RULE",
			fmt.Sprintf("rule %s has unknown strength", r.Name)).WithField("base_strength")
	}
	if err := causal.ValidateConfidence(r.BaseConfidence); err != nil {
		return err
	}
	if err := r.Window.validate(); err != nil {
		return err.WithDetails(map[string]interface{}{"rule": r.Name})
	}
	for key := range r.RequiredContext {
		if _, ok := contextFields[key]; !ok {
			return errors.NewValidationError("INVALID_RULE",
				fmt.Sprintf("rule %s requires unknown context field %q", r.Name, key)).WithField("required_context")
		}
	}
	return nil
}

func attributeEqual(got, want any) bool {
	if g, ok := got.(string); ok {
		w, ok := want.(string)
		return ok && g == w
	}
	gf, gok := event.ToFloat(got)
	wf, wok := event.ToFloat(want)
	if gok && wok {
		return gf == wf
	}
	return reflect.DeepEqual(got, want)
}
