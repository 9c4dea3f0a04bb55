package patterns

import (
	"fmt"
	"math"
	"slices"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/pattern"
)

// FindPeriodic reports event types whose occurrences are spaced regularly: the
// population standard deviation of consecutive intervals must be within the
// tolerance and the mean interval positive.
func (d *Detector) FindPeriodic(events []*event.Event) []*pattern.EventPattern {
	total := len(events)
	byType := make(map[event.Type][]*event.Event)
	for _, ev := range byTime(events) {
		byType[ev.Type] = append(byType[ev.Type], ev)
	}

	types := make([]event.Type, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	slices.Sort(types)

	var out []*pattern.EventPattern
	for _, t := range types {
		occ := byType[t]
		if len(occ) < d.cfg.MinPeriodicOccurrences {
			continue
		}
		intervals := make([]float64, len(occ)-1)
		for i := 1; i < len(occ); i++ {
			intervals[i-1] = minutesBetween(occ[i-1].Timestamp, occ[i].Timestamp)
		}
		mean, std := meanStdDev(intervals)
		if mean <= 0 || std > d.cfg.PeriodicToleranceMinutes {
			continue
		}

		first := occ[0].Timestamp
		last := occ[len(occ)-1].Timestamp
		out = append(out, &pattern.EventPattern{
			Kind:                    pattern.KindPeriodic,
			Description:             fmt.Sprintf("Periodic: %s every ~%.0f min", t, mean),
			EventTypes:              []event.Type{t},
			TypicalDurationMinutes:  ptr(mean),
			TypicalIntervalsMinutes: intervals,
			OccurrenceCount:         len(occ),
			Confidence:              1 - math.Min(std/mean, 1),
			Support:                 float64(len(occ)) / float64(total),
			FirstSeen:               &first,
			LastSeen:                &last,
			Attributes: map[string]any{
				"average_interval_minutes": mean,
				"std_dev_minutes":          std,
			},
		})
	}
	return finalize(out, "per")
}

func meanStdDev(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}
