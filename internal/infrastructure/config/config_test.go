package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 1440, cfg.Engine.TimeWindowMinutes)
	assert.InDelta(t, 0.5, cfg.Engine.MinConfidence, 1e-9)
	assert.True(t, cfg.Engine.AutoDiscover)
	assert.Equal(t, 3, cfg.Patterns.MinPeriodicOccurrences)
	assert.Equal(t, 2, cfg.Propagator.HopLimit)
	assert.Equal(t, 5, cfg.Analytics.TopN)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.Redis.SessionTTL)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
environment: staging
engine:
  time_window_minutes: 720
  min_confidence: 0.6
patterns:
  min_support: 0.2
redis:
  addr: localhost:6379
  session_ttl: 2h
`)
	t.Setenv("CCE_ENGINE__MIN_CONFIDENCE", "0.7")
	t.Setenv("CCE_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 720, cfg.Engine.TimeWindowMinutes)
	assert.InDelta(t, 0.7, cfg.Engine.MinConfidence, 1e-9)
	assert.InDelta(t, 0.2, cfg.Patterns.MinSupport, 1e-9)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 2*time.Hour, cfg.Redis.SessionTTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown environment", body: "environment: moon\n"},
		{name: "engine window", body: "engine:\n  time_window_minutes: 0\n"},
		{name: "pattern support", body: "patterns:\n  min_support: 1.5\n"},
		{name: "propagator decay", body: "propagator:\n  decay_factor: 0\n"},
		{name: "analytics top n", body: "analytics:\n  top_n: 0\n"},
		{name: "scenario start", body: "scenario:\n  start: yesterday\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "got %v", err)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := config.Load(writeConfig(t, "engine: [unterminated\n"))
	require.Error(t, err)
	assert.False(t, errors.IsValidation(err))
}

func TestScenarioStart(t *testing.T) {
	now := time.Date(2025, 3, 4, 10, 42, 0, 0, time.UTC)

	cfg := config.Defaults()
	assert.Equal(t, time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC), cfg.ScenarioStart(now))

	cfg.Scenario.Start = "2025-01-01T09:00:00Z"
	assert.Equal(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), cfg.ScenarioStart(now))
}
