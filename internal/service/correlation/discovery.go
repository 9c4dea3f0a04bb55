package correlation

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/rule"
)

// discover relates ev to every stored event within the time window.
// Candidates are visited in insertion order.
func (e *Engine) discover(ev *event.Event) int {
	created := 0
	for _, other := range e.windowCandidates(ev) {
		created += e.relatePair(ev, other)
	}
	return created
}

// relatePair tries the pair with the earlier event as cause. Events with the
// same timestamp are never related by discovery.
func (e *Engine) relatePair(a, b *event.Event) int {
	switch {
	case a.Timestamp.Before(b.Timestamp):
		return e.relate(a, b)
	case b.Timestamp.Before(a.Timestamp):
		return e.relate(b, a)
	default:
		return 0
	}
}

// windowCandidates returns stored events other than ev whose timestamps are
// within the configured window of ev, in insertion order.
func (e *Engine) windowCandidates(ev *event.Event) []*event.Event {
	w := e.cfg.window()
	lower := timelineRef{at: ev.Timestamp.Add(-w), seq: -1}
	upper := ev.Timestamp.Add(w)

	start, _ := slices.BinarySearchFunc(e.timeline, lower, compareTimeline)
	var refs []timelineRef
	for _, ref := range e.timeline[start:] {
		if ref.at.After(upper) {
			break
		}
		if ref.id != ev.ID {
			refs = append(refs, ref)
		}
	}
	slices.SortFunc(refs, func(a, b timelineRef) int { return a.seq - b.seq })

	out := make([]*event.Event, len(refs))
	for i, ref := range refs {
		out[i] = e.events[ref.id]
	}
	return out
}

// relate evaluates the rule library for (cause, effect) and links every match
// that clears the confidence floor and is not already present.
func (e *Engine) relate(cause, effect *event.Event) int {
	created := 0
	for _, m := range e.library.Evaluate(cause, effect, e.onRuleError) {
		d := m.Details
		if d.Confidence < e.cfg.MinConfidence {
			continue
		}
		key := causal.Key{CauseID: cause.ID, EffectID: effect.ID, Type: d.Type}
		if _, exists := e.byKey[key]; exists {
			continue
		}

		rel, err := causal.New(causal.Params{
			CauseID:         cause.ID,
			EffectID:        effect.ID,
			Type:            d.Type,
			Strength:        d.Strength,
			Confidence:      d.Confidence,
			TimeLagMinutes:  d.TimeLagMinutes,
			ImpactMagnitude: d.ImpactMagnitude,
			ImpactDirection: d.ImpactDirection,
			DiscoveredAt:    e.clock.Now(),
			DiscoveryMethod: d.DiscoveryMethod,
			RuleName:        m.Rule.Name,
			Notes:           d.Notes,
		})
		if err != nil {
			e.logger.Error("rule produced an invalid relationship",
				zap.String("rule", m.Rule.Name),
				zap.Error(err))
			continue
		}

		e.link(rel)
		e.stats.rulesApplied++
		e.stats.relationshipsDiscovered++
		created++
		e.metrics.RecordRelationship(context.Background(), "rule", d.Type.String())
		e.logger.Debug("relationship discovered",
			zap.String("rule", m.Rule.Name),
			zap.String("cause_event_id", cause.ID.String()),
			zap.String("effect_event_id", effect.ID.String()),
			zap.Float64("confidence", d.Confidence),
			zap.Float64("time_lag_minutes", d.TimeLagMinutes))
	}
	return created
}

func (e *Engine) onRuleError(r rule.Rule, cause, effect *event.Event, err error) {
	e.stats.ruleFailures++
	e.metrics.RecordRuleFailure(context.Background(), r.Name)
	e.logger.Warn("rule evaluation failed, skipping rule for pair",
		zap.String("rule", r.Name),
		zap.String("cause_event_id", cause.ID.String()),
		zap.String("effect_event_id", effect.ID.String()),
		zap.Error(err))
}

// Rediscover replays discovery over every stored pair inside the window,
// typically after rules were added. Existing edges are never duplicated, so a
// second call with unchanged rules returns zero.
func (e *Engine) Rediscover() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	created := 0
	for _, id := range e.order {
		ev := e.events[id]
		seq := e.seqOf[id]
		for _, other := range e.windowCandidates(ev) {
			if e.seqOf[other.ID] >= seq {
				continue
			}
			created += e.relatePair(ev, other)
		}
	}

	e.metrics.SetEngineSize(len(e.events), len(e.relationships))
	e.logger.Info("rediscovery complete", zap.Int("relationships_created", created))
	return created
}
