package correlation

import (
	"fmt"
	"time"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
)

// Config controls relationship discovery
type Config struct {
	TimeWindowMinutes int     `json:"time_window_minutes" koanf:"time_window_minutes"`
	MinConfidence     float64 `json:"min_confidence" koanf:"min_confidence"`
	AutoDiscover      bool    `json:"auto_discover" koanf:"auto_discover"`
}

// DefaultConfig returns a one day window, 0.5 confidence floor and auto discovery
func DefaultConfig() Config {
	return Config{
		TimeWindowMinutes: 1440,
		MinConfidence:     0.5,
		AutoDiscover:      true,
	}
}

func (c Config) Validate() error {
	if c.TimeWindowMinutes <= 0 {
		return errors.NewValidationError("INVALID_ENGINE_CONFIG",
			fmt.Sprintf("time window must be positive, got %d", c.TimeWindowMinutes)).WithField("time_window_minutes")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 || c.MinConfidence != c.MinConfidence {
		return errors.NewValidationError("INVALID_ENGINE_CONFIG",
			fmt.Sprintf("min confidence must be within [0,1], got %v", c.MinConfidence)).WithField("min_confidence")
	}
	return nil
}

func (c Config) window() time.Duration {
	return time.Duration(c.TimeWindowMinutes) * time.Minute
}
