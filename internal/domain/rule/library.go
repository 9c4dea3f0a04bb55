package rule

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
)

// ErrorHandler receives strategy failures. The failing rule is treated as non-matching.
type ErrorHandler func(r Rule, cause, effect *event.Event, err error)

type LibraryOption func(*Library)

// WithErrorHandler sets the callback used for condition and impact failures
func WithErrorHandler(h ErrorHandler) LibraryOption {
	return func(l *Library) {
		l.onError = h
	}
}

// Details are the relationship fields a matching rule derives for a pair
type Details struct {
	Type            causal.Type
	Strength        causal.Strength
	Confidence      float64
	TimeLagMinutes  float64
	ImpactMagnitude *float64
	ImpactDirection causal.Direction
	DiscoveryMethod string
	Notes           string
}

// Match pairs a rule with the details it derived
type Match struct {
	Rule    Rule
	Details Details
}

type entry struct {
	rule      Rule
	seq       int
	condition Condition
	impact    ImpactCalculator
}

// Library indexes rules by cause and effect type. Buckets are kept in
// descending priority, insertion order breaking ties.
type Library struct {
	mu       sync.RWMutex
	registry *Registry
	onError  ErrorHandler

	entries   []*entry
	byName    map[string]*entry
	byCause   map[event.Type][]*entry
	byEffect  map[event.Type][]*entry
	anyCause  []*entry
	anyEffect []*entry
}

// NewLibrary creates an empty library resolving strategies through registry
func NewLibrary(registry *Registry, opts ...LibraryOption) *Library {
	if registry == nil {
		registry = NewRegistry()
	}
	l := &Library{
		registry: registry,
		byName:   make(map[string]*entry),
		byCause:  make(map[event.Type][]*entry),
		byEffect: make(map[event.Type][]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry returns the strategy registry rules are resolved against
func (l *Library) Registry() *Registry {
	return l.registry
}

// AddRule validates and indexes a rule
func (l *Library) AddRule(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	e := &entry{rule: cloneRule(r)}
	if r.Condition != "" {
		c, err := l.registry.Condition(r.Condition)
		if err != nil {
			return errors.NewValidationError("UNKNOWN_CONDITION",
				fmt.Sprintf("rule %s references unregistered condition %q", r.Name, r.Condition)).
				WithField("condition").WithCause(err)
		}
		e.condition = c
	}
	if r.Impact != "" {
		c, err := l.registry.Impact(r.Impact)
		if err != nil {
			return errors.NewValidationError("UNKNOWN_IMPACT",
				fmt.Sprintf("rule %s references unregistered impact calculator %q", r.Name, r.Impact)).
				WithField("impact_calculator").WithCause(err)
		}
		e.impact = c
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byName[r.Name]; exists {
		return errors.NewConflictError(fmt.Sprintf("rule %q already exists", r.Name)).WithID(r.Name)
	}
	e.seq = len(l.entries)
	l.entries = append(l.entries, e)
	l.byName[r.Name] = e

	if t := r.CausePattern.Type; t != nil {
		l.byCause[*t] = insertByPriority(l.byCause[*t], e)
	} else {
		l.anyCause = insertByPriority(l.anyCause, e)
	}
	if t := r.EffectPattern.Type; t != nil {
		l.byEffect[*t] = insertByPriority(l.byEffect[*t], e)
	} else {
		l.anyEffect = insertByPriority(l.anyEffect, e)
	}
	return nil
}

// AddRules adds rules in order, stopping at the first failure
func (l *Library) AddRules(rules ...Rule) error {
	for _, r := range rules {
		if err := l.AddRule(r); err != nil {
			return err
		}
	}
	return nil
}

func insertByPriority(bucket []*entry, e *entry) []*entry {
	i, _ := slices.BinarySearchFunc(bucket, e, compareEntries)
	return slices.Insert(bucket, i, e)
}

func compareEntries(a, b *entry) int {
	if a.rule.Priority != b.rule.Priority {
		return b.rule.Priority - a.rule.Priority
	}
	return a.seq - b.seq
}

func merge(typed, wildcard []*entry) []*entry {
	if len(wildcard) == 0 {
		return typed
	}
	out := make([]*entry, 0, len(typed)+len(wildcard))
	out = append(out, typed...)
	out = append(out, wildcard...)
	slices.SortFunc(out, compareEntries)
	return out
}

func (l *Library) candidatesForCause(e *event.Event) []*entry {
	return merge(l.byCause[e.Type], l.anyCause)
}

// RulesForCause returns rules whose cause type accepts the event, highest priority first
func (l *Library) RulesForCause(e *event.Event) []Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return rulesOf(l.candidatesForCause(e))
}

// RulesForEffect returns rules whose effect type accepts the event, highest priority first
func (l *Library) RulesForEffect(e *event.Event) []Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return rulesOf(merge(l.byEffect[e.Type], l.anyEffect))
}

func rulesOf(entries []*entry) []Rule {
	out := make([]Rule, len(entries))
	for i, e := range entries {
		out[i] = cloneRule(e.rule)
	}
	return out
}

// FindMatchingRules evaluates every cause-indexed candidate against the pair
// and returns the matches, highest priority first. A rule whose strategy fails
// is skipped and reported to the error handler.
func (l *Library) FindMatchingRules(cause, effect *event.Event) []Match {
	return l.Evaluate(cause, effect, nil)
}

// Evaluate is FindMatchingRules with an additional per-call failure callback
func (l *Library) Evaluate(cause, effect *event.Event, onError ErrorHandler) []Match {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matches []Match
	for _, e := range l.candidatesForCause(cause) {
		d, ok := l.evaluate(e, cause, effect, onError)
		if ok {
			matches = append(matches, Match{Rule: cloneRule(e.rule), Details: d})
		}
	}
	return matches
}

func (l *Library) evaluate(e *entry, cause, effect *event.Event, onError ErrorHandler) (d Details, ok bool) {
	r := &e.rule
	if !r.CausePattern.Matches(cause) || !r.EffectPattern.Matches(effect) {
		return Details{}, false
	}
	if !r.contextMatches(cause, effect) {
		return Details{}, false
	}
	lag := event.LagMinutes(cause, effect)
	if !r.Window.Contains(lag) {
		return Details{}, false
	}

	defer func() {
		if p := recover(); p != nil {
			l.report(onError, r, cause, effect, fmt.Errorf("strategy panic: %v", p))
			d, ok = Details{}, false
		}
	}()

	confidence := r.BaseConfidence
	if e.condition != nil {
		holds, err := e.condition.Evaluate(cause, effect)
		if err != nil {
			l.report(onError, r, cause, effect, err)
			return Details{}, false
		}
		if !holds {
			return Details{}, false
		}
		if adj, isAdjuster := e.condition.(ConfidenceAdjuster); isAdjuster {
			factor, err := adj.AdjustConfidence(cause, effect)
			if err != nil {
				l.report(onError, r, cause, effect, err)
				return Details{}, false
			}
			confidence = clamp01(confidence * factor)
		}
	}

	d = Details{
		Type:            r.Type,
		Strength:        r.BaseStrength,
		Confidence:      confidence,
		TimeLagMinutes:  lag,
		DiscoveryMethod: causal.RuleMethod(r.Name),
		Notes:           r.Description,
	}
	if e.impact != nil {
		impact, err := e.impact.ComputeImpact(cause, effect)
		if err != nil {
			l.report(onError, r, cause, effect, err)
			return Details{}, false
		}
		if math.IsNaN(impact) || math.IsInf(impact, 0) {
			l.report(onError, r, cause, effect, fmt.Errorf("impact is not finite: %v", impact))
			return Details{}, false
		}
		d.ImpactMagnitude = &impact
		d.ImpactDirection = causal.DirectionOf(impact)
	}
	return d, true
}

func (l *Library) report(onError ErrorHandler, r *Rule, cause, effect *event.Event, err error) {
	wrapped := errors.NewRuleEvaluationError(r.Name, err)
	if l.onError != nil {
		l.onError(*r, cause, effect, wrapped)
	}
	if onError != nil {
		onError(*r, cause, effect, wrapped)
	}
}

// Rule returns a rule by name
func (l *Library) Rule(name string) (Rule, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.byName[name]
	if !ok {
		return Rule{}, errors.NewNotFoundError("rule").WithID(name)
	}
	return cloneRule(e.rule), nil
}

// Rules returns every rule in insertion order
func (l *Library) Rules() []Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return rulesOf(l.entries)
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// cloneRule copies r so that no slice, map or pointer is shared with the library
func cloneRule(r Rule) Rule {
	r.Tags = slices.Clone(r.Tags)
	r.RequiredContext = maps.Clone(r.RequiredContext)
	r.CausePattern = clonePattern(r.CausePattern)
	r.EffectPattern = clonePattern(r.EffectPattern)
	if r.Window.MaxLagMinutes != nil {
		m := *r.Window.MaxLagMinutes
		r.Window.MaxLagMinutes = &m
	}
	return r
}

func clonePattern(p Pattern) Pattern {
	p.Tags = slices.Clone(p.Tags)
	p.Attributes = maps.Clone(p.Attributes)
	if p.Type != nil {
		t := *p.Type
		p.Type = &t
	}
	if p.Severity != nil {
		s := *p.Severity
		p.Severity = &s
	}
	return p
}
