package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
)

// BaseTime anchors fixture timestamps so offsets are reproducible
var BaseTime = time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)

// EventBuilder builds test Event entities
type EventBuilder struct {
	t      *testing.T
	params event.Params
}

// NewEventBuilder creates a new EventBuilder with defaults
func NewEventBuilder(t *testing.T) *EventBuilder {
	t.Helper()
	return &EventBuilder{
		t: t,
		params: event.Params{
			ID:          uuid.New(),
			Timestamp:   BaseTime,
			Type:        event.TypeMarketShift,
			Severity:    event.SeverityMedium,
			Title:       "Test event",
			Description: "Generated by fixtures",
			Context:     event.Context{Domain: "test", Source: "fixtures"},
			Confidence:  0.8,
			Attributes:  map[string]any{},
		},
	}
}

// WithID sets the event ID
func (b *EventBuilder) WithID(id uuid.UUID) *EventBuilder {
	b.params.ID = id
	return b
}

// WithType sets the event type
func (b *EventBuilder) WithType(t event.Type) *EventBuilder {
	b.params.Type = t
	return b
}

// WithSeverity sets the severity
func (b *EventBuilder) WithSeverity(s event.Severity) *EventBuilder {
	b.params.Severity = s
	return b
}

// AtMinute places the event the given number of minutes after BaseTime
func (b *EventBuilder) AtMinute(minutes float64) *EventBuilder {
	b.params.Timestamp = BaseTime.Add(time.Duration(minutes * float64(time.Minute)))
	return b
}

// WithTitle sets the title
func (b *EventBuilder) WithTitle(title string) *EventBuilder {
	b.params.Title = title
	return b
}

// WithDomain sets the context domain
func (b *EventBuilder) WithDomain(domain string) *EventBuilder {
	b.params.Context.Domain = domain
	return b
}

// WithTags sets the context tags
func (b *EventBuilder) WithTags(tags ...string) *EventBuilder {
	b.params.Context.Tags = tags
	return b
}

// WithAttribute sets a custom attribute
func (b *EventBuilder) WithAttribute(key string, value any) *EventBuilder {
	b.params.Attributes[key] = value
	return b
}

// WithDirection sets the "direction" attribute used by business rules
func (b *EventBuilder) WithDirection(direction string) *EventBuilder {
	return b.WithAttribute("direction", direction)
}

// Build creates the Event entity
func (b *EventBuilder) Build() *event.Event {
	b.t.Helper()
	e, err := event.New(b.params)
	require.NoError(b.t, err)
	return e
}

// Series builds one event of type t at each minute offset
func Series(t *testing.T, typ event.Type, offsets ...float64) []*event.Event {
	t.Helper()
	out := make([]*event.Event, len(offsets))
	for i, off := range offsets {
		out[i] = NewEventBuilder(t).WithType(typ).AtMinute(off).Build()
	}
	return out
}
