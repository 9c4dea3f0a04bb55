package pattern

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
)

// Kind tags the structure a detected pattern describes
type Kind int

const (
	KindSequence Kind = iota
	KindCoOccurrence
	KindCascade
	KindPeriodic
)

func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "sequence"
	case KindCoOccurrence:
		return "co_occurrence"
	case KindCascade:
		return "cascade"
	case KindPeriodic:
		return "periodic"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for _, c := range AllKinds() {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown pattern kind %q", string(b))
}

func AllKinds() []Kind {
	return []Kind{KindSequence, KindCoOccurrence, KindCascade, KindPeriodic}
}

// EventPattern is a regularity derived from one detection pass
type EventPattern struct {
	ID                      string         `json:"pattern_id"`
	Kind                    Kind           `json:"pattern_type"`
	Description             string         `json:"description"`
	EventTypes              []event.Type   `json:"event_types"`
	EventSequence           []uuid.UUID    `json:"event_sequence,omitempty"`
	TypicalDurationMinutes  *float64       `json:"typical_duration_minutes,omitempty"`
	TypicalIntervalsMinutes []float64      `json:"typical_intervals_minutes,omitempty"`
	OccurrenceCount         int            `json:"occurrence_count"`
	Confidence              float64        `json:"confidence"`
	Support                 float64        `json:"support"`
	FirstSeen               *time.Time     `json:"first_seen,omitempty"`
	LastSeen                *time.Time     `json:"last_seen,omitempty"`
	Attributes              map[string]any `json:"attributes,omitempty"`
}

// TypeNames joins the pattern's event types with sep
func (p *EventPattern) TypeNames(sep string) string {
	names := make([]string, len(p.EventTypes))
	for i, t := range p.EventTypes {
		names[i] = t.String()
	}
	return strings.Join(names, sep)
}

// Result groups detected patterns by kind
type Result map[Kind][]*EventPattern

// Total counts patterns across all kinds
func (r Result) Total() int {
	n := 0
	for _, ps := range r {
		n += len(ps)
	}
	return n
}
