package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application-level configuration for the council service.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. YAML configuration file (medium priority)
//  3. Environment variables (highest priority)
type Config struct {
	// Core configuration
	Name string `yaml:"name"`
	Port int    `yaml:"port"`

	// Redis configuration (optional; in-memory stores are used when empty)
	RedisURL string `yaml:"redis_url"`

	// Execution configuration
	Execution ExecutionConfig `yaml:"execution"`

	// Cost configuration
	Cost CostConfig `yaml:"cost"`

	// Telemetry configuration
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`
}

// ExecutionConfig controls orchestration behavior
type ExecutionConfig struct {
	// ParallelismOverride forces the executor's worker bound for every
	// execution mode when > 0. Normally 0, letting the mode decide.
	ParallelismOverride int `yaml:"parallelism_override"`

	// EnableArbitration toggles conflict arbitration between duplicate
	// subtask results
	EnableArbitration bool `yaml:"enable_arbitration"`

	// EnableSynthesis toggles final response synthesis
	EnableSynthesis bool `yaml:"enable_synthesis"`
}

// CostConfig controls cost recording
type CostConfig struct {
	// Enabled toggles per-provider cost recording
	Enabled bool `yaml:"enabled"`
}

// TelemetryConfig controls OpenTelemetry export
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration defaults
func DefaultConfig() *Config {
	return &Config{
		Name: "council",
		Port: 8080,
		Execution: ExecutionConfig{
			EnableArbitration: true,
			EnableSynthesis:   true,
		},
		Cost: CostConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML
// file, and environment variables, in that priority order.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, ErrMissingConfiguration)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, ErrInvalidConfiguration)
		}
	}

	cfg.applyEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironment overrides configuration from environment variables
func (c *Config) applyEnvironment() {
	if v := os.Getenv("COUNCIL_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("COUNCIL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("ORCH_PARALLELISM_OVERRIDE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Execution.ParallelismOverride = n
		}
	}
	if v := os.Getenv("COUNCIL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("COUNCIL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = v
	}
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range: %w", c.Port, ErrInvalidConfiguration)
	}
	if c.Execution.ParallelismOverride < 0 {
		return fmt.Errorf("parallelism override must be positive: %w", ErrInvalidConfiguration)
	}
	return nil
}

// HealthCacheTTL is how long provider health results stay fresh.
const HealthCacheTTL = 60 * time.Second

// HealthProbeTimeout bounds a single provider health probe.
const HealthProbeTimeout = 10 * time.Second
