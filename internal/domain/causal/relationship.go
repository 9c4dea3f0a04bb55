package causal

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
)

const (
	// MethodManual marks edges registered explicitly rather than derived by a rule
	MethodManual = "manual"
	methodRule   = "rule:"
)

// relationshipNamespace seeds deterministic relationship ids
var relationshipNamespace = uuid.MustParse("5b0d4c7e-2f7a-4d1e-9f57-3c1a0e6b8d21")

// Relationship is a directed, typed, confidence scored edge between two events
type Relationship struct {
	ID              uuid.UUID      `json:"id"`
	CauseID         uuid.UUID      `json:"cause_event_id"`
	EffectID        uuid.UUID      `json:"effect_event_id"`
	Type            Type           `json:"causality_type"`
	Strength        Strength       `json:"strength"`
	Confidence      float64        `json:"confidence_score"`
	TimeLagMinutes  float64        `json:"time_lag_minutes"`
	Conditions      map[string]any `json:"conditions,omitempty"`
	ImpactMagnitude *float64       `json:"impact_magnitude,omitempty"`
	ImpactDirection Direction      `json:"impact_direction"`
	DiscoveredAt    time.Time      `json:"discovered_at"`
	DiscoveryMethod string         `json:"discovery_method"`
	RuleName        string         `json:"rule_name,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty"`
}

// Params holds the inputs for New
type Params struct {
	CauseID         uuid.UUID
	EffectID        uuid.UUID
	Type            Type
	Strength        Strength
	Confidence      float64
	TimeLagMinutes  float64
	Conditions      map[string]any
	ImpactMagnitude *float64
	ImpactDirection Direction
	DiscoveredAt    time.Time
	DiscoveryMethod string
	RuleName        string
	Notes           string
	Attributes      map[string]any
}

// Key identifies an edge for de-duplication
type Key struct {
	CauseID  uuid.UUID
	EffectID uuid.UUID
	Type     Type
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.CauseID, k.EffectID, k.Type)
}

// ID returns the deterministic relationship id for the key
func (k Key) ID() uuid.UUID {
	return uuid.NewSHA1(relationshipNamespace, []byte(k.String()))
}

// RuleMethod formats the discovery method for a rule derived edge
func RuleMethod(ruleName string) string {
	return methodRule + ruleName
}

// New validates and builds a relationship. The time lag is not range checked:
// rule derived edges are always non-negative, manual edges keep the signed lag.
func New(p Params) (*Relationship, error) {
	if err := validateFields(p.CauseID, p.EffectID, p.Type, p.Strength, p.Confidence, p.TimeLagMinutes); err != nil {
		return nil, err
	}
	if p.DiscoveryMethod == "" {
		p.DiscoveryMethod = MethodManual
	}
	if p.DiscoveredAt.IsZero() {
		p.DiscoveredAt = time.Now().UTC()
	}

	key := Key{CauseID: p.CauseID, EffectID: p.EffectID, Type: p.Type}
	return &Relationship{
		ID:              key.ID(),
		CauseID:         p.CauseID,
		EffectID:        p.EffectID,
		Type:            p.Type,
		Strength:        p.Strength,
		Confidence:      p.Confidence,
		TimeLagMinutes:  p.TimeLagMinutes,
		Conditions:      p.Conditions,
		ImpactMagnitude: p.ImpactMagnitude,
		ImpactDirection: p.ImpactDirection,
		DiscoveredAt:    p.DiscoveredAt,
		DiscoveryMethod: p.DiscoveryMethod,
		RuleName:        p.RuleName,
		Notes:           p.Notes,
		Attributes:      p.Attributes,
	}, nil
}

func validateFields(causeID, effectID uuid.UUID, typ Type, strength Strength, confidence, lag float64) error {
	if causeID == uuid.Nil {
		return errors.NewValidationError("INVALID_RELATIONSHIP", "cause event id is required").WithField("cause_event_id")
	}
	if effectID == uuid.Nil {
		return errors.NewValidationError("INVALID_RELATIONSHIP", "effect event id is required").WithField("effect_event_id")
	}
	if !typ.Valid() {
		return errors.NewValidationError("INVALID_RELATIONSHIP",
			fmt.Sprintf("invalid causality type %d", int(typ))).WithField("causality_type")
	}
	if !strength.Valid() {
		return errors.NewValidationError("INVALID_RELATIONSHIP",
			fmt.Sprintf("invalid strength %d", int(strength))).WithField("strength")
	}
	if err := ValidateConfidence(confidence); err != nil {
		return err
	}
	if math.IsNaN(lag) || math.IsInf(lag, 0) {
		return errors.NewValidationError("INVALID_RELATIONSHIP", "time lag must be finite").WithField("time_lag_minutes")
	}
	return nil
}

// Validate checks a relationship read back from storage. Rule derived edges
// must have a non-negative lag; manual edges keep whatever lag they were given.
func (r *Relationship) Validate() error {
	if r == nil {
		return errors.NewValidationError("NIL_RELATIONSHIP", "relationship is required").WithField("relationship")
	}
	if err := validateFields(r.CauseID, r.EffectID, r.Type, r.Strength, r.Confidence, r.TimeLagMinutes); err != nil {
		return err
	}
	if !r.IsManual() && r.TimeLagMinutes < 0 {
		return errors.NewValidationError("INVALID_RELATIONSHIP",
			fmt.Sprintf("rule derived edge has negative lag %v", r.TimeLagMinutes)).WithField("time_lag_minutes")
	}
	return nil
}

// ValidateConfidence checks that c is a finite value in [0,1]
func ValidateConfidence(c float64) error {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return errors.NewValidationError("INVALID_CONFIDENCE",
			fmt.Sprintf("confidence %v must be within [0,1]", c)).WithField("confidence_score")
	}
	return nil
}

func (r *Relationship) Key() Key {
	return Key{CauseID: r.CauseID, EffectID: r.EffectID, Type: r.Type}
}

// CausalWeight combines strength and confidence; monotonic in both
func (r *Relationship) CausalWeight() float64 {
	return r.Strength.Weight() * r.Confidence
}

// IsSignificant reports whether the edge clears minConfidence and is not very weak
func (r *Relationship) IsSignificant(minConfidence float64) bool {
	return r.Confidence >= minConfidence && r.Strength != StrengthVeryWeak
}

// IsManual reports whether the edge bypassed rule discovery
func (r *Relationship) IsManual() bool {
	return r.DiscoveryMethod == MethodManual
}

// Clone returns a copy that does not share maps with r
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	c := *r
	if r.ImpactMagnitude != nil {
		m := *r.ImpactMagnitude
		c.ImpactMagnitude = &m
	}
	c.Conditions = copyMap(r.Conditions)
	c.Attributes = copyMap(r.Attributes)
	return &c
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
