package patterns

import (
	"fmt"
	"math"
	"time"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/pattern"
)

type typePair struct {
	a, b event.Type
}

func orderedPair(x, y event.Type) typePair {
	if x > y {
		x, y = y, x
	}
	return typePair{a: x, b: y}
}

// DetectCoOccurrences finds pairs of distinct types that happen within the
// co-occurrence window of each other more often than chance.
func (d *Detector) DetectCoOccurrences(events []*event.Event) []*pattern.EventPattern {
	total := len(events)
	if total < 2 {
		return finalize(nil, "cooc")
	}
	sorted := byTime(events)

	typeCounts := make(map[event.Type]int)
	for _, ev := range sorted {
		typeCounts[ev.Type]++
	}

	counts := make(map[typePair]int)
	firstSeen := make(map[typePair]time.Time)
	lastSeen := make(map[typePair]time.Time)
	var pairs []typePair
	for i, ev := range sorted {
		for _, other := range sorted[i+1:] {
			if minutesBetween(ev.Timestamp, other.Timestamp) > d.cfg.CoOccurrenceWindowMinutes {
				break
			}
			if other.Type == ev.Type {
				continue
			}
			p := orderedPair(ev.Type, other.Type)
			if counts[p] == 0 {
				pairs = append(pairs, p)
				firstSeen[p] = ev.Timestamp
			}
			counts[p]++
			lastSeen[p] = other.Timestamp
		}
	}

	var out []*pattern.EventPattern
	for _, p := range pairs {
		n := counts[p]
		support := float64(n) / float64(total)
		if n < d.cfg.MinOccurrences || !meets(support, d.cfg.MinSupport) {
			continue
		}
		confidence := math.Min(math.Max(
			float64(n)/float64(typeCounts[p.a]),
			float64(n)/float64(typeCounts[p.b]),
		), 1)
		if confidence < d.cfg.MinConfidence {
			continue
		}
		first, last := firstSeen[p], lastSeen[p]
		out = append(out, &pattern.EventPattern{
			Kind:            pattern.KindCoOccurrence,
			Description:     fmt.Sprintf("Co-occurrence: %s with %s", p.a, p.b),
			EventTypes:      []event.Type{p.a, p.b},
			OccurrenceCount: n,
			Confidence:      confidence,
			Support:         support,
			FirstSeen:       &first,
			LastSeen:        &last,
			Attributes: map[string]any{
				"time_window_minutes": d.cfg.CoOccurrenceWindowMinutes,
			},
		})
	}
	return finalize(out, "cooc")
}
