package rule

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
)

// Condition decides whether a rule applies to a (cause, effect) pair
type Condition interface {
	Evaluate(cause, effect *event.Event) (bool, error)
}

// ImpactCalculator estimates the impact magnitude of a matched pair
type ImpactCalculator interface {
	ComputeImpact(cause, effect *event.Event) (float64, error)
}

// ConfidenceAdjuster is an optional capability of a Condition. The returned
// factor multiplies the rule's base confidence.
type ConfidenceAdjuster interface {
	AdjustConfidence(cause, effect *event.Event) (float64, error)
}

// ConditionFunc adapts a plain predicate
type ConditionFunc func(cause, effect *event.Event) bool

func (f ConditionFunc) Evaluate(cause, effect *event.Event) (bool, error) {
	return f(cause, effect), nil
}

// ImpactFunc adapts a plain calculator
type ImpactFunc func(cause, effect *event.Event) float64

func (f ImpactFunc) ComputeImpact(cause, effect *event.Event) (float64, error) {
	return f(cause, effect), nil
}

// Registry resolves strategy names referenced by rules
type Registry struct {
	mu         sync.RWMutex
	conditions map[string]Condition
	impacts    map[string]ImpactCalculator
}

func NewRegistry() *Registry {
	return &Registry{
		conditions: make(map[string]Condition),
		impacts:    make(map[string]ImpactCalculator),
	}
}

func (r *Registry) RegisterCondition(name string, c Condition) error {
	if name == "" || c == nil {
		return errors.NewValidationError("INVALID_STRATEGY", "condition name and implementation are required").WithField("condition")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conditions[name]; exists {
		return errors.NewConflictError(fmt.Sprintf("condition %q already registered", name)).WithID(name)
	}
	r.conditions[name] = c
	return nil
}

func (r *Registry) RegisterImpact(name string, c ImpactCalculator) error {
	if name == "" || c == nil {
		return errors.NewValidationError("INVALID_STRATEGY", "impact name and implementation are required").WithField("impact_calculator")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.impacts[name]; exists {
		return errors.NewConflictError(fmt.Sprintf("impact calculator %q already registered", name)).WithID(name)
	}
	r.impacts[name] = c
	return nil
}

func (r *Registry) Condition(name string) (Condition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conditions[name]
	if !ok {
		return nil, errors.NewNotFoundError("condition").WithID(name)
	}
	return c, nil
}

func (r *Registry) Impact(name string) (ImpactCalculator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.impacts[name]
	if !ok {
		return nil, errors.NewNotFoundError("impact calculator").WithID(name)
	}
	return c, nil
}

// Names lists registered condition and impact names, sorted
func (r *Registry) Names() (conditions, impacts []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for n := range r.conditions {
		conditions = append(conditions, n)
	}
	for n := range r.impacts {
		impacts = append(impacts, n)
	}
	slices.Sort(conditions)
	slices.Sort(impacts)
	return conditions, impacts
}

// Side selects which event of the pair a parameterized strategy inspects
type Side int

const (
	Cause Side = iota
	Effect
)

func (s Side) pick(cause, effect *event.Event) *event.Event {
	if s == Effect {
		return effect
	}
	return cause
}

// AttributeEquals holds when the chosen event's attribute equals Value
type AttributeEquals struct {
	Side  Side
	Key   string
	Value any
}

func (c AttributeEquals) Evaluate(cause, effect *event.Event) (bool, error) {
	got, ok := c.Side.pick(cause, effect).Attributes[c.Key]
	return ok && attributeEqual(got, c.Value), nil
}

// DirectionCondition checks the "direction" attribute of either side; an empty
// expectation leaves that side unconstrained
type DirectionCondition struct {
	Cause  string
	Effect string
}

func (c DirectionCondition) Evaluate(cause, effect *event.Event) (bool, error) {
	if c.Cause != "" {
		if d, _ := cause.StringAttribute("direction"); d != c.Cause {
			return false, nil
		}
	}
	if c.Effect != "" {
		if d, _ := effect.StringAttribute("direction"); d != c.Effect {
			return false, nil
		}
	}
	return true, nil
}

// SeverityAtLeast holds when the chosen event is at least Min severe
type SeverityAtLeast struct {
	Side Side
	Min  event.Severity
}

func (c SeverityAtLeast) Evaluate(cause, effect *event.Event) (bool, error) {
	return c.Side.pick(cause, effect).Severity >= c.Min, nil
}

// AttributeContains is a case-insensitive substring test on a string attribute
type AttributeContains struct {
	Side   Side
	Key    string
	Substr string
}

func (c AttributeContains) Evaluate(cause, effect *event.Event) (bool, error) {
	s, _ := c.Side.pick(cause, effect).StringAttribute(c.Key)
	return strings.Contains(strings.ToLower(s), strings.ToLower(c.Substr)), nil
}

// AttributeAbove holds when a numeric attribute is strictly greater than Threshold.
// A missing attribute counts as zero.
type AttributeAbove struct {
	Side      Side
	Key       string
	Threshold float64
}

func (c AttributeAbove) Evaluate(cause, effect *event.Event) (bool, error) {
	e := c.Side.pick(cause, effect)
	raw, ok := e.Attributes[c.Key]
	if !ok {
		return 0 > c.Threshold, nil
	}
	v, ok := event.ToFloat(raw)
	if !ok {
		return false, fmt.Errorf("attribute %q is not numeric: %v", c.Key, raw)
	}
	return v > c.Threshold, nil
}

// AllOf combines conditions with logical and
type AllOf []Condition

func (all AllOf) Evaluate(cause, effect *event.Event) (bool, error) {
	for _, c := range all {
		ok, err := c.Evaluate(cause, effect)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// ScaledAttribute computes Factor times a numeric attribute. A missing
// attribute yields zero; a non-numeric one is an error.
type ScaledAttribute struct {
	Side   Side
	Key    string
	Factor float64
}

func (c ScaledAttribute) ComputeImpact(cause, effect *event.Event) (float64, error) {
	raw, ok := c.Side.pick(cause, effect).Attributes[c.Key]
	if !ok {
		return 0, nil
	}
	v, ok := event.ToFloat(raw)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not numeric: %v", c.Key, raw)
	}
	return v * c.Factor, nil
}
