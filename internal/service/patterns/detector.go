package patterns

import (
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/pattern"
)

// supportEpsilon absorbs float error so a support exactly at the threshold qualifies
const supportEpsilon = 1e-9

// Config holds detection thresholds
type Config struct {
	MinSupport                float64 `json:"min_support" koanf:"min_support" validate:"gte=0,lte=1"`
	MinConfidence             float64 `json:"min_confidence" koanf:"min_confidence" validate:"gte=0,lte=1"`
	MaxTimeWindowMinutes      float64 `json:"max_time_window_minutes" koanf:"max_time_window_minutes" validate:"gt=0"`
	MaxSequenceLength         int     `json:"max_sequence_length" koanf:"max_sequence_length" validate:"gte=2"`
	CoOccurrenceWindowMinutes float64 `json:"co_occurrence_window_minutes" koanf:"co_occurrence_window_minutes" validate:"gt=0"`
	MinCascadeLength          int     `json:"min_cascade_length" koanf:"min_cascade_length" validate:"gte=2"`
	PeriodicToleranceMinutes  float64 `json:"periodic_tolerance_minutes" koanf:"periodic_tolerance_minutes" validate:"gte=0"`
	MinPeriodicOccurrences    int     `json:"min_periodic_occurrences" koanf:"min_periodic_occurrences" validate:"gte=3"`
	MinOccurrences            int     `json:"min_occurrences" koanf:"min_occurrences" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{
		MinSupport:                0.1,
		MinConfidence:             0.5,
		MaxTimeWindowMinutes:      1440,
		MaxSequenceLength:         5,
		CoOccurrenceWindowMinutes: 60,
		MinCascadeLength:          3,
		PeriodicToleranceMinutes:  30,
		MinPeriodicOccurrences:    3,
		MinOccurrences:            2,
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.NewValidationError("INVALID_PATTERN_CONFIG",
				fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())).WithField(fe.Field())
		}
		return errors.NewValidationError("INVALID_PATTERN_CONFIG", err.Error())
	}
	return nil
}

// Detector mines sequences, co-occurrences, cascades and periodic recurrences.
// Every method is a pure function of its input.
type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

func (d *Detector) Config() Config {
	return d.cfg
}

// AnalyzeAll runs every detector and keys the results by kind. Pattern ids
// restart at zero on every call.
func (d *Detector) AnalyzeAll(events []*event.Event, relationships []*causal.Relationship) pattern.Result {
	return pattern.Result{
		pattern.KindSequence:     d.DetectSequences(events),
		pattern.KindCoOccurrence: d.DetectCoOccurrences(events),
		pattern.KindCascade:      d.DetectCascades(events, relationships),
		pattern.KindPeriodic:     d.FindPeriodic(events),
	}
}

func byTime(events []*event.Event) []*event.Event {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b *event.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return sorted
}

func minutesBetween(a, b time.Time) float64 {
	return b.Sub(a).Minutes()
}

func meets(support, threshold float64) bool {
	return support+supportEpsilon >= threshold
}

// finalize orders patterns by support then description and assigns ids
func finalize(ps []*pattern.EventPattern, prefix string) []*pattern.EventPattern {
	slices.SortStableFunc(ps, func(a, b *pattern.EventPattern) int {
		switch {
		case a.Support > b.Support:
			return -1
		case a.Support < b.Support:
			return 1
		case a.Description < b.Description:
			return -1
		case a.Description > b.Description:
			return 1
		default:
			return 0
		}
	})
	for i, p := range ps {
		p.ID = fmt.Sprintf("%s_%d", prefix, i)
	}
	if ps == nil {
		return []*pattern.EventPattern{}
	}
	return ps
}

func ptr[T any](v T) *T {
	return &v
}
