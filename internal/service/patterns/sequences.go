package patterns

import (
	"fmt"
	"math"
	"strings"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/pattern"
)

type sequenceGroup struct {
	types       []event.Type
	occurrences [][]*event.Event
}

func sequenceKey(types []event.Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, ">")
}

// contiguousWindows groups every run of consecutive events (in time order) of
// the given length whose span fits the configured window, keyed by type tuple.
func (d *Detector) contiguousWindows(sorted []*event.Event, length int) (map[string]*sequenceGroup, []string) {
	groups := make(map[string]*sequenceGroup)
	var keys []string
	for end := length - 1; end < len(sorted); end++ {
		run := sorted[end-length+1 : end+1]
		if minutesBetween(run[0].Timestamp, run[len(run)-1].Timestamp) > d.cfg.MaxTimeWindowMinutes {
			continue
		}
		types := make([]event.Type, length)
		for i, ev := range run {
			types[i] = ev.Type
		}
		key := sequenceKey(types)
		g, ok := groups[key]
		if !ok {
			g = &sequenceGroup{types: types}
			groups[key] = g
			keys = append(keys, key)
		}
		g.occurrences = append(g.occurrences, run)
	}
	return groups, keys
}

// DetectSequences finds ordered type tuples that recur as consecutive events.
// Support is occurrences over total events. Confidence is how often the
// tuple's prefix is followed by its final type.
func (d *Detector) DetectSequences(events []*event.Event) []*pattern.EventPattern {
	total := len(events)
	if total < 2 {
		return finalize(nil, "seq")
	}
	sorted := byTime(events)

	prefixCounts := make(map[string]int)
	for _, ev := range sorted {
		prefixCounts[sequenceKey([]event.Type{ev.Type})]++
	}

	var out []*pattern.EventPattern
	for length := 2; length <= d.cfg.MaxSequenceLength && length <= total; length++ {
		groups, keys := d.contiguousWindows(sorted, length)
		for _, key := range keys {
			g := groups[key]
			n := len(g.occurrences)
			support := float64(n) / float64(total)
			if n < d.cfg.MinOccurrences || !meets(support, d.cfg.MinSupport) {
				continue
			}
			confidence := 0.0
			if pc := prefixCounts[sequenceKey(g.types[:length-1])]; pc > 0 {
				confidence = math.Min(float64(n)/float64(pc), 1)
			}
			out = append(out, sequencePattern(g, support, confidence))
		}
		for key, g := range groups {
			prefixCounts[key] = len(g.occurrences)
		}
	}
	return finalize(out, "seq")
}

func sequencePattern(g *sequenceGroup, support, confidence float64) *pattern.EventPattern {
	var gapSum float64
	var gaps int
	for _, occ := range g.occurrences {
		for i := 1; i < len(occ); i++ {
			gapSum += minutesBetween(occ[i-1].Timestamp, occ[i].Timestamp)
			gaps++
		}
	}
	first := g.occurrences[0][0].Timestamp
	last := g.occurrences[len(g.occurrences)-1]
	lastSeen := last[len(last)-1].Timestamp

	p := &pattern.EventPattern{
		Kind:            pattern.KindSequence,
		EventTypes:      g.types,
		OccurrenceCount: len(g.occurrences),
		Confidence:      confidence,
		Support:         support,
		FirstSeen:       &first,
		LastSeen:        &lastSeen,
	}
	p.Description = fmt.Sprintf("Sequence: %s", p.TypeNames(" -> "))
	if gaps > 0 {
		p.TypicalDurationMinutes = ptr(gapSum / float64(gaps))
	}
	return p
}
