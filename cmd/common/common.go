// Package common provides shared utilities for the capture-sim CLI:
// configuration loading, logger construction and city-count bounds
// checking.
package common

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/covops/capturenet/protocol"

	"gopkg.in/yaml.v3"
)

// City-count bounds for the CLI surface. Values outside the band fall
// back to the default rather than failing the invocation.
const (
	DefaultCities = 8
	MinCities     = 1
	MaxCities     = 64
)

// Duration wraps time.Duration so YAML configs can use human-readable
// values like "5s" or "250ms".
type Duration time.Duration

// UnmarshalYAML parses a duration string or a nanosecond integer.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %v", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the simulator's file configuration.
type Config struct {
	Cities      int      `yaml:"cities"`
	StepTimeout Duration `yaml:"step_timeout"`
	Seed        int64    `yaml:"seed"`

	// ListenAddr enables the diagnostic HTTP server when non-empty.
	ListenAddr string `yaml:"listen_addr"`

	// JSONLogs switches log output from text to JSON.
	JSONLogs bool `yaml:"json_logs"`

	// Verbose lowers the log level to debug.
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Cities:      DefaultCities,
		StepTimeout: Duration(5 * time.Second),
	}
}

// LoadConfig reads a YAML configuration file, filling unset fields with
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ClampCities enforces the CLI city-count bounds: out-of-band values
// are logged and replaced with the default.
func ClampCities(n int, log *slog.Logger) int {
	if n < MinCities || n > MaxCities {
		log.Warn("city count out of bounds, using default",
			"requested", n, "min", MinCities, "max", MaxCities, "default", DefaultCities)
		return DefaultCities
	}
	return n
}

// SimConfig converts the CLI configuration into the protocol config.
func (c *Config) SimConfig() *protocol.SimConfig {
	sim := protocol.DefaultSimConfig()
	sim.Sites = c.Cities
	sim.Seed = c.Seed
	if c.StepTimeout > 0 {
		sim.StepTimeout = c.StepTimeout.Std()
	}
	return sim
}

// NewLogger builds the process logger.
func NewLogger(jsonLogs, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
