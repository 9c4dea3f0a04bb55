package event

import (
	stderrors "errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
)

// Event is a discrete, timestamped business occurrence. Everything except the
// cause and effect reference sets is fixed after creation.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        Type      `json:"event_type" validate:"event_type"`
	Severity    Severity  `json:"severity" validate:"severity"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description" validate:"required"`
	Context     Context   `json:"context"`

	Magnitude  float64 `json:"magnitude" validate:"finite"`
	Confidence float64 `json:"confidence" validate:"finite,gte=0,lte=1"`

	DurationMinutes              *int `json:"duration_minutes,omitempty" validate:"omitempty,gte=0"`
	ExpectedEffectsWindowMinutes *int `json:"expected_effects_window_minutes,omitempty" validate:"omitempty,gte=0"`

	Attributes map[string]any `json:"attributes,omitempty"`

	// Relationship ids, appended by the correlation engine only
	CauseIDs  []uuid.UUID `json:"causes"`
	EffectIDs []uuid.UUID `json:"effects"`
}

// Context describes where an event originated
type Context struct {
	Domain       string   `json:"domain" validate:"required"`
	Source       string   `json:"source" validate:"required"`
	Location     string   `json:"location,omitempty"`
	Department   string   `json:"department,omitempty"`
	Stakeholders []string `json:"stakeholders,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// Params holds the inputs for New. A zero ID or Timestamp is generated.
type Params struct {
	ID          uuid.UUID
	Timestamp   time.Time
	Type        Type
	Severity    Severity
	Title       string
	Description string
	Context     Context
	Magnitude   float64
	Confidence  float64

	DurationMinutes              *int
	ExpectedEffectsWindowMinutes *int

	Attributes map[string]any
	Clock      Clock
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	v.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		return Type(fl.Field().Int()).Valid()
	})
	v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		return Severity(fl.Field().Int()).Valid()
	})
	return v
}

// New creates a validated event
func New(p Params) (*Event, error) {
	clock := p.Clock
	if clock == nil {
		clock = RealClock{}
	}

	e := &Event{
		ID:                           p.ID,
		Timestamp:                    p.Timestamp,
		Type:                         p.Type,
		Severity:                     p.Severity,
		Title:                        p.Title,
		Description:                  p.Description,
		Context:                      p.Context,
		Magnitude:                    p.Magnitude,
		Confidence:                   p.Confidence,
		DurationMinutes:              p.DurationMinutes,
		ExpectedEffectsWindowMinutes: p.ExpectedEffectsWindowMinutes,
		Attributes:                   p.Attributes,
		CauseIDs:                     []uuid.UUID{},
		EffectIDs:                    []uuid.UUID{},
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = clock.Now()
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the event's declared field constraints
func (e *Event) Validate() error {
	if e == nil {
		return errors.NewValidationError("NIL_EVENT", "event is required").WithField("event")
	}
	if e.ID == uuid.Nil {
		return errors.NewValidationError("INVALID_EVENT", "event id is required").WithField("id")
	}
	if e.Timestamp.IsZero() {
		return errors.NewValidationError("INVALID_EVENT", "event timestamp is required").
			WithField("timestamp").WithID(e.ID)
	}
	if err := validate.Struct(e); err != nil {
		return translate(err).WithID(e.ID)
	}
	return nil
}

func translate(err error) *errors.AppError {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.NewValidationError("INVALID_EVENT", err.Error())
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Event.")
	msg := fmt.Sprintf("field %s failed %q check", field, fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("field %s failed %s=%s", field, fe.Tag(), fe.Param())
	}
	return errors.NewValidationError("INVALID_EVENT", msg).WithField(field)
}

// AddCause records an incoming relationship id; repeated ids are ignored
func (e *Event) AddCause(relID uuid.UUID) {
	if !slices.Contains(e.CauseIDs, relID) {
		e.CauseIDs = append(e.CauseIDs, relID)
	}
}

// AddEffect records an outgoing relationship id; repeated ids are ignored
func (e *Event) AddEffect(relID uuid.UUID) {
	if !slices.Contains(e.EffectIDs, relID) {
		e.EffectIDs = append(e.EffectIDs, relID)
	}
}

// HasTag reports whether the event context carries the tag
func (e *Event) HasTag(tag string) bool {
	return slices.Contains(e.Context.Tags, tag)
}

func (e *Event) Attribute(key string) (any, bool) {
	v, ok := e.Attributes[key]
	return v, ok
}

// NumericAttribute returns a custom attribute coerced to float64
func (e *Event) NumericAttribute(key string) (float64, bool) {
	v, ok := e.Attributes[key]
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// StringAttribute returns a custom attribute if it is a string
func (e *Event) StringAttribute(key string) (string, bool) {
	v, ok := e.Attributes[key].(string)
	return v, ok
}

// Clone returns a deep copy safe to hand to readers
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Context.Stakeholders = slices.Clone(e.Context.Stakeholders)
	c.Context.Tags = slices.Clone(e.Context.Tags)
	c.CauseIDs = slices.Clone(e.CauseIDs)
	c.EffectIDs = slices.Clone(e.EffectIDs)
	if e.DurationMinutes != nil {
		d := *e.DurationMinutes
		c.DurationMinutes = &d
	}
	if e.ExpectedEffectsWindowMinutes != nil {
		w := *e.ExpectedEffectsWindowMinutes
		c.ExpectedEffectsWindowMinutes = &w
	}
	if e.Attributes != nil {
		c.Attributes = make(map[string]any, len(e.Attributes))
		for k, v := range e.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// LagMinutes is effect.Timestamp minus cause.Timestamp in minutes
func LagMinutes(cause, effect *Event) float64 {
	return effect.Timestamp.Sub(cause.Timestamp).Minutes()
}

// ToFloat coerces numeric attribute values, including numeric strings
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
