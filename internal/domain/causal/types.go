package causal

import (
	"fmt"
	"strings"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
)

// Type is the kind of causal influence an edge asserts
type Type int

const (
	TypeDirect Type = iota
	TypeIndirect
	TypeContributory
	TypeConditional
	TypeProbabilistic
	TypePreventive
	TypeCatalytic
	TypeSuppressive
	TypeCorrelational
)

func (t Type) String() string {
	switch t {
	case TypeDirect:
		return "direct"
	case TypeIndirect:
		return "indirect"
	case TypeContributory:
		return "contributory"
	case TypeConditional:
		return "conditional"
	case TypeProbabilistic:
		return "probabilistic"
	case TypePreventive:
		return "preventive"
	case TypeCatalytic:
		return "catalytic"
	case TypeSuppressive:
		return "suppressive"
	case TypeCorrelational:
		return "correlational"
	default:
		return "unknown"
	}
}

func (t Type) Valid() bool {
	return t >= TypeDirect && t <= TypeCorrelational
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid causality type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, t := range AllTypes() {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, errors.NewValidationError("UNKNOWN_CAUSALITY_TYPE",
		fmt.Sprintf("unknown causality type %q", s)).WithField("causality_type")
}

func AllTypes() []Type {
	return []Type{
		TypeDirect, TypeIndirect, TypeContributory, TypeConditional, TypeProbabilistic,
		TypePreventive, TypeCatalytic, TypeSuppressive, TypeCorrelational,
	}
}

// Direction is the sign of an edge's impact
type Direction int

const (
	DirectionNegative Direction = -1
	DirectionNeutral  Direction = 0
	DirectionPositive Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionNegative:
		return "negative"
	case DirectionPositive:
		return "positive"
	default:
		return "neutral"
	}
}

// DirectionOf returns the sign of v
func DirectionOf(v float64) Direction {
	switch {
	case v > 0:
		return DirectionPositive
	case v < 0:
		return DirectionNegative
	default:
		return DirectionNeutral
	}
}
