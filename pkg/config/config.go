// Package config loads and validates the parley client configuration.
// Every scheduling heuristic the client uses (title-trigger window and
// delay, batch size, inter-batch delay, list-refresh delay) lives here
// as a tunable rather than a constant buried in an action.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	perrors "github.com/odvcencio/parley/pkg/errors"
)

// Default configuration values exported for documentation and validation
const (
	DefaultBackendOrigin  = "http://127.0.0.1:8000/api"
	DefaultRequestTimeout = 30 * time.Second

	DefaultTitleTriggerMin   = 2
	DefaultTitleTriggerMax   = 6
	DefaultTitleTriggerDelay = 1 * time.Second
	DefaultTitleRefreshDelay = 500 * time.Millisecond
	DefaultTitleBatchSize    = 3
	DefaultTitleBatchDelay   = 500 * time.Millisecond

	DefaultLogLevel = "info"
	DefaultBusMode  = "memory"
)

// Config represents the complete parley client configuration
type Config struct {
	// BackendOrigin is the base URL all REST and streaming paths are
	// resolved against.
	BackendOrigin  string        `yaml:"backend_origin"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Titles TitlesConfig `yaml:"titles"`
	Bus    BusConfig    `yaml:"bus"`

	LogDir   string `yaml:"log_dir"`
	LogLevel string `yaml:"log_level"`

	// NetworkLog enables the JSONL request/response transport log.
	NetworkLog bool `yaml:"network_log"`
}

// TitlesConfig tunes automatic title generation. The trigger window is
// inclusive on both ends: a placeholder-titled conversation with a
// message count inside [TriggerMin, TriggerMax] schedules one
// regeneration.
type TitlesConfig struct {
	TriggerMin   int           `yaml:"trigger_min"`
	TriggerMax   int           `yaml:"trigger_max"`
	TriggerDelay time.Duration `yaml:"trigger_delay"`

	// RefreshDelay is how long after a title commit the full list is
	// re-fetched to reconcile server-derived fields.
	RefreshDelay time.Duration `yaml:"refresh_delay"`

	BatchSize  int           `yaml:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay"`
}

// BusConfig selects the broadcast transport: "memory" (default,
// in-process) or "nats".
type BusConfig struct {
	Mode string `yaml:"mode"`
	URL  string `yaml:"url"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		BackendOrigin:  DefaultBackendOrigin,
		RequestTimeout: DefaultRequestTimeout,
		Titles: TitlesConfig{
			TriggerMin:   DefaultTitleTriggerMin,
			TriggerMax:   DefaultTitleTriggerMax,
			TriggerDelay: DefaultTitleTriggerDelay,
			RefreshDelay: DefaultTitleRefreshDelay,
			BatchSize:    DefaultTitleBatchSize,
			BatchDelay:   DefaultTitleBatchDelay,
		},
		Bus:        BusConfig{Mode: DefaultBusMode},
		LogLevel:   DefaultLogLevel,
		NetworkLog: false,
	}
}

// Load reads ~/.parley/config.yaml when present, applies environment
// overrides, and validates.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".parley", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if cfg.LogDir == "" {
			cfg.LogDir = filepath.Join(home, ".parley", "logs")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return perrors.Wrap(err, perrors.ErrCodeConfigLoad, "reading config file").WithContext("path", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return perrors.Wrap(err, perrors.ErrCodeConfigParse, "parsing config file").WithContext("path", path)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PARLEY_BACKEND_ORIGIN"); v != "" {
		cfg.BackendOrigin = v
	}
	if v := os.Getenv("PARLEY_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PARLEY_BUS_MODE"); v != "" {
		cfg.Bus.Mode = v
	}
	if v := os.Getenv("PARLEY_NATS_URL"); v != "" {
		cfg.Bus.URL = v
	}
	if v := os.Getenv("PARLEY_NETWORK_LOG"); v == "1" || v == "true" {
		cfg.NetworkLog = true
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.BackendOrigin == "" {
		return perrors.New(perrors.ErrCodeConfigLoad, "backend_origin must be set")
	}
	if c.RequestTimeout <= 0 {
		return perrors.New(perrors.ErrCodeConfigLoad, "request_timeout must be positive")
	}
	if c.Titles.TriggerMin < 1 || c.Titles.TriggerMax < c.Titles.TriggerMin {
		return perrors.New(perrors.ErrCodeConfigLoad,
			fmt.Sprintf("invalid title trigger window [%d, %d]", c.Titles.TriggerMin, c.Titles.TriggerMax))
	}
	if c.Titles.BatchSize < 1 {
		return perrors.New(perrors.ErrCodeConfigLoad, "titles.batch_size must be at least 1")
	}
	switch c.Bus.Mode {
	case "memory", "nats":
	default:
		return perrors.New(perrors.ErrCodeConfigLoad, "bus.mode must be \"memory\" or \"nats\"").
			WithContext("mode", c.Bus.Mode)
	}
	return nil
}
