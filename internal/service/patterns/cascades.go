package patterns

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/pattern"
)

// DetectCascades walks relationships from every root event (no incoming edge
// among the given events), each step taking the strongest outgoing edge whose
// lag is within the window. Chains of at least MinCascadeLength events are kept.
func (d *Detector) DetectCascades(events []*event.Event, relationships []*causal.Relationship) []*pattern.EventPattern {
	total := len(events)
	if total == 0 || len(relationships) == 0 {
		return finalize(nil, "casc")
	}

	byID := make(map[uuid.UUID]*event.Event, total)
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	outgoing := make(map[uuid.UUID][]*causal.Relationship)
	hasIncoming := make(map[uuid.UUID]bool)
	for _, rel := range relationships {
		if byID[rel.CauseID] == nil || byID[rel.EffectID] == nil || rel.CauseID == rel.EffectID {
			continue
		}
		outgoing[rel.CauseID] = append(outgoing[rel.CauseID], rel)
		hasIncoming[rel.EffectID] = true
	}
	for id, rels := range outgoing {
		slices.SortStableFunc(rels, func(a, b *causal.Relationship) int {
			switch {
			case a.Confidence > b.Confidence:
				return -1
			case a.Confidence < b.Confidence:
				return 1
			default:
				return byID[a.EffectID].Timestamp.Compare(byID[b.EffectID].Timestamp)
			}
		})
		outgoing[id] = rels
	}

	var out []*pattern.EventPattern
	for _, root := range byTime(events) {
		if hasIncoming[root.ID] || len(outgoing[root.ID]) == 0 {
			continue
		}
		chain, edges := d.walk(root, outgoing, byID)
		if len(chain) < d.cfg.MinCascadeLength {
			continue
		}
		out = append(out, cascadePattern(chain, edges, total))
	}
	return finalize(out, "casc")
}

func (d *Detector) walk(root *event.Event, outgoing map[uuid.UUID][]*causal.Relationship, byID map[uuid.UUID]*event.Event) ([]*event.Event, []*causal.Relationship) {
	chain := []*event.Event{root}
	var edges []*causal.Relationship
	visited := map[uuid.UUID]bool{root.ID: true}

	current := root
	for {
		var next *causal.Relationship
		for _, rel := range outgoing[current.ID] {
			if visited[rel.EffectID] {
				continue
			}
			if rel.TimeLagMinutes < 0 || rel.TimeLagMinutes > d.cfg.MaxTimeWindowMinutes {
				continue
			}
			next = rel
			break
		}
		if next == nil {
			return chain, edges
		}
		current = byID[next.EffectID]
		visited[current.ID] = true
		chain = append(chain, current)
		edges = append(edges, next)
	}
}

func cascadePattern(chain []*event.Event, edges []*causal.Relationship, total int) *pattern.EventPattern {
	ids := make([]uuid.UUID, len(chain))
	types := make([]event.Type, len(chain))
	for i, ev := range chain {
		ids[i] = ev.ID
		types[i] = ev.Type
	}
	var confSum float64
	intervals := make([]float64, len(edges))
	for i, rel := range edges {
		confSum += rel.Confidence
		intervals[i] = rel.TimeLagMinutes
	}
	first := chain[0].Timestamp
	last := chain[len(chain)-1].Timestamp

	return &pattern.EventPattern{
		Kind:                    pattern.KindCascade,
		Description:             fmt.Sprintf("Cascade: %d events", len(chain)),
		EventTypes:              types,
		EventSequence:           ids,
		TypicalDurationMinutes:  ptr(minutesBetween(first, last)),
		TypicalIntervalsMinutes: intervals,
		OccurrenceCount:         1,
		Confidence:              confSum / float64(len(edges)),
		Support:                 float64(len(chain)) / float64(total),
		FirstSeen:               &first,
		LastSeen:                &last,
		Attributes: map[string]any{
			"root_event_id": chain[0].ID.String(),
		},
	}
}
