package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/causal-correlation-engine/internal/service/analytics"
	"github.com/davidleathers/causal-correlation-engine/internal/service/correlation"
	"github.com/davidleathers/causal-correlation-engine/internal/service/patterns"
	"github.com/davidleathers/causal-correlation-engine/internal/service/sectorimpact"
)

// EnvPrefix marks environment overrides. Nested keys are separated by a
// double underscore: CCE_ENGINE__TIME_WINDOW_MINUTES=720.
const EnvPrefix = "CCE_"

// DefaultPath is read when Load is given no explicit file
const DefaultPath = "configs/config.yaml"

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Engine     correlation.Config  `koanf:"engine"`
	Patterns   patterns.Config     `koanf:"patterns"`
	Propagator sectorimpact.Config `koanf:"propagator"`
	Analytics  analytics.Config    `koanf:"analytics"`
	Scenario   ScenarioConfig      `koanf:"scenario"`

	Telemetry telemetry.Config `koanf:"telemetry"`
	Metrics   MetricsConfig    `koanf:"metrics"`
	Database  DatabaseConfig   `koanf:"database"`
	Redis     RedisConfig      `koanf:"redis"`
}

type ScenarioConfig struct {
	Seed uint64 `koanf:"seed"`
	// Start is RFC 3339; empty means the current hour
	Start string `koanf:"start"`
}

type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures snapshot persistence. An empty URL disables it.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns" validate:"gte=1"`
	MinConns        int32         `koanf:"min_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

// RedisConfig configures the session cache. An empty Addr disables it.
type RedisConfig struct {
	Addr       string        `koanf:"addr"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db" validate:"gte=0"`
	SessionTTL time.Duration `koanf:"session_ttl"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

func Defaults() *Config {
	tel := telemetry.DefaultConfig()
	tel.Enabled = false
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Engine:      correlation.DefaultConfig(),
		Patterns:    patterns.DefaultConfig(),
		Propagator:  sectorimpact.DefaultConfig(),
		Analytics:   analytics.DefaultConfig(),
		Scenario:    ScenarioConfig{Seed: 1},
		Telemetry:   *tel,
		Metrics:     MetricsConfig{Addr: ":9464"},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  10 * time.Second,
		},
		Redis: RedisConfig{
			SessionTTL: 24 * time.Hour,
		},
	}
}

// Load layers defaults, an optional YAML file and CCE_ environment overrides.
// A missing file at path is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

var validate = validator.New()

// Validate checks every section, reporting the first failure
func (c *Config) Validate() error {
	if err := validate.Struct(struct {
		Environment string `validate:"oneof=development staging production test"`
		LogLevel    string `validate:"oneof=debug info warn warning error"`
		Analytics   analytics.Config
		Database    DatabaseConfig
		Redis       RedisConfig
	}{c.Environment, strings.ToLower(c.LogLevel), c.Analytics, c.Database, c.Redis}); err != nil {
		var ve validator.ValidationErrors
		if stderrors.As(err, &ve) && len(ve) > 0 {
			return errors.NewValidationError("INVALID_CONFIG",
				fmt.Sprintf("%s failed %s validation", ve[0].Namespace(), ve[0].Tag())).WithField(ve[0].Field())
		}
		return errors.NewValidationError("INVALID_CONFIG", err.Error())
	}

	for _, check := range []func() error{
		c.Engine.Validate,
		c.Patterns.Validate,
		c.Propagator.Validate,
	} {
		if err := check(); err != nil {
			return err
		}
	}

	if c.Scenario.Start != "" {
		if _, err := time.Parse(time.RFC3339, c.Scenario.Start); err != nil {
			return errors.NewValidationError("INVALID_CONFIG",
				fmt.Sprintf("scenario start %q is not RFC 3339", c.Scenario.Start)).WithField("start")
		}
	}
	if c.Redis.Enabled() && c.Redis.SessionTTL <= 0 {
		return errors.NewValidationError("INVALID_CONFIG", "session ttl must be positive").WithField("session_ttl")
	}
	return nil
}

// ScenarioStart resolves the configured scenario start, defaulting to now
// truncated to the hour.
func (c *Config) ScenarioStart(now time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, c.Scenario.Start); err == nil {
		return t.UTC()
	}
	return now.UTC().Truncate(time.Hour)
}
