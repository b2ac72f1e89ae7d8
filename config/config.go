// Package config loads admission controller settings from TOML or YAML
// files, .env files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vinayprograms/admitkit/errors"
	"github.com/vinayprograms/admitkit/ratelimit"
)

// Environment variables that override file values.
const (
	EnvLimitPerSecond = "LIMIT_PER_SECOND"
	EnvLimitPerMinute = "LIMIT_PER_MINUTE"
	EnvQueueCapacity  = "ADMIT_QUEUE_CAPACITY"
	EnvLogLevel       = "ADMIT_LOG_LEVEL"
	EnvNATSURL        = "NATS_URL"
)

// Defaults used by Default.
const (
	DefaultPerSecond     = 100
	DefaultPerMinute     = 200
	DefaultQueueCapacity = 1024
)

// Config is the complete configuration of one admission controller process.
type Config struct {
	QueueCapacity int             `toml:"queue_capacity" yaml:"queue_capacity"`
	Rules         []Rule          `toml:"rules" yaml:"rules"`
	Log           LogConfig       `toml:"log" yaml:"log"`
	Telemetry     TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
	Metrics       MetricsConfig   `toml:"metrics" yaml:"metrics"`
	Events        EventsConfig    `toml:"events" yaml:"events"`
}

// Rule is one rate limit rule as written in a config file.
type Rule struct {
	Name     string   `toml:"name" yaml:"name"`
	MaxCount int      `toml:"max_count" yaml:"max_count"`
	Window   Duration `toml:"window" yaml:"window"`
}

// LogConfig selects the log level and encoder.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
	// Env "production" selects JSON output.
	Env string `toml:"env" yaml:"env"`
}

// TelemetryConfig configures OTLP trace export. Tracing is off when
// Endpoint is empty.
type TelemetryConfig struct {
	Endpoint    string  `toml:"endpoint" yaml:"endpoint"`
	Protocol    string  `toml:"protocol" yaml:"protocol"`
	Insecure    bool    `toml:"insecure" yaml:"insecure"`
	ServiceName string  `toml:"service_name" yaml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio" yaml:"sample_ratio"`
}

// MetricsConfig configures the Prometheus endpoint. Metrics are served
// only when Addr is set.
type MetricsConfig struct {
	Namespace string `toml:"namespace" yaml:"namespace"`
	Addr      string `toml:"addr" yaml:"addr"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	NATSURL string `toml:"nats_url" yaml:"nats_url"`
	Prefix  string `toml:"prefix" yaml:"prefix"`
}

// Duration is a time.Duration written as a Go duration string ("1s", "1m").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		QueueCapacity: DefaultQueueCapacity,
		Rules: []Rule{
			{Name: "per-second", MaxCount: DefaultPerSecond, Window: Duration{time.Second}},
			{Name: "per-minute", MaxCount: DefaultPerMinute, Window: Duration{time.Minute}},
		},
		Log:    LogConfig{Level: "info", Env: "development"},
		Events: EventsConfig{Prefix: "admission"},
	}
}

// Load reads a .toml, .yaml or .yml file over the defaults. Rules in the
// file replace the default rules.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	cfg.Rules = nil

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "parse toml config")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "parse yaml config")
		}
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported config format %q", ext))
	}

	if len(cfg.Rules) == 0 {
		cfg.Rules = Default().Rules
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files, or ./.env when none are named.
// Missing files are ignored and existing variables are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from the environment. LIMIT_PER_SECOND and
// LIMIT_PER_MINUTE set the count of the rule whose window is one second or
// one minute, adding that rule when there is none.
func (c *Config) ApplyEnv() error {
	if err := c.applyLimit(EnvLimitPerSecond, "per-second", time.Second); err != nil {
		return err
	}
	if err := c.applyLimit(EnvLimitPerMinute, "per-minute", time.Minute); err != nil {
		return err
	}

	if v, ok := os.LookupEnv(EnvQueueCapacity); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "invalid "+EnvQueueCapacity)
		}
		c.QueueCapacity = n
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvNATSURL); ok && v != "" {
		c.Events.NATSURL = v
	}
	return nil
}

func (c *Config) applyLimit(key, name string, window time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "invalid "+key)
	}

	for i := range c.Rules {
		if c.Rules[i].Window.Duration == window {
			c.Rules[i].MaxCount = n
			return nil
		}
	}
	c.Rules = append(c.Rules, Rule{Name: name, MaxCount: n, Window: Duration{window}})
	return nil
}

// RateLimitRules converts the configured rules.
func (c *Config) RateLimitRules() []ratelimit.Rule {
	rules := make([]ratelimit.Rule, len(c.Rules))
	for i, r := range c.Rules {
		rules[i] = ratelimit.Rule{Name: r.Name, MaxCount: r.MaxCount, Window: r.Window.Duration}
	}
	return rules
}

// Validate checks the rules and queue capacity.
func (c *Config) Validate() error {
	if len(c.Rules) == 0 {
		return errors.WrapWithCode(ratelimit.ErrNoRules, errors.ErrCodeInvalidInput, "invalid config")
	}
	for _, r := range c.RateLimitRules() {
		if err := r.Validate(); err != nil {
			return errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "invalid config")
		}
	}
	if c.QueueCapacity <= 0 {
		return errors.InvalidInput(fmt.Sprintf("queue_capacity must be positive, got %d", c.QueueCapacity))
	}
	return nil
}
