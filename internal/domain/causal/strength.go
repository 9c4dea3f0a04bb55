package causal

import (
	"fmt"
	"strings"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
)

// Strength is a five tier ordinal bound to a numeric sub-range of [0,1]
type Strength int

const (
	StrengthVeryWeak Strength = iota
	StrengthWeak
	StrengthModerate
	StrengthStrong
	StrengthVeryStrong
)

// StrengthTableVersion identifies the range and weight table below.
// Bump it whenever a bound or weight changes so persisted edges can be told apart.
const StrengthTableVersion = 1

type strengthBand struct {
	name   string
	lower  float64
	upper  float64
	weight float64
}

var strengthTable = [...]strengthBand{
	StrengthVeryWeak:   {"very_weak", 0.0, 0.2, 0.1},
	StrengthWeak:       {"weak", 0.2, 0.4, 0.25},
	StrengthModerate:   {"moderate", 0.4, 0.6, 0.5},
	StrengthStrong:     {"strong", 0.6, 0.8, 0.75},
	StrengthVeryStrong: {"very_strong", 0.8, 1.0, 1.0},
}

func (s Strength) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return strengthTable[s].name
}

func (s Strength) Valid() bool {
	return s >= StrengthVeryWeak && s <= StrengthVeryStrong
}

// Range returns the half-open score range [lower, upper); the top band includes 1.0
func (s Strength) Range() (lower, upper float64) {
	if !s.Valid() {
		return 0, 0
	}
	b := strengthTable[s]
	return b.lower, b.upper
}

// Weight is the numeric value used in the composite causal weight
func (s Strength) Weight() float64 {
	if !s.Valid() {
		return 0
	}
	return strengthTable[s].weight
}

// StrengthFromScore maps a score in [0,1] to its band; out of range scores clamp
func StrengthFromScore(score float64) Strength {
	for s := StrengthVeryStrong; s > StrengthVeryWeak; s-- {
		if score >= strengthTable[s].lower {
			return s
		}
	}
	return StrengthVeryWeak
}

func (s Strength) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid strength %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Strength) UnmarshalText(b []byte) error {
	parsed, err := ParseStrength(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseStrength(str string) (Strength, error) {
	name := strings.ToLower(strings.TrimSpace(str))
	for s := StrengthVeryWeak; s <= StrengthVeryStrong; s++ {
		if strengthTable[s].name == name {
			return s, nil
		}
	}
	return 0, errors.NewValidationError("UNKNOWN_STRENGTH",
		fmt.Sprintf("unknown strength %q", str)).WithField("strength")
}

func AllStrengths() []Strength {
	return []Strength{StrengthVeryWeak, StrengthWeak, StrengthModerate, StrengthStrong, StrengthVeryStrong}
}
