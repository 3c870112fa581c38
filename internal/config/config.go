// Package config loads the nodenet runtime configuration from YAML with
// NODENET_ environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. NODENET_STORE_KIND.
const EnvPrefix = "NODENET"

type Config struct {
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

type StoreConfig struct {
	// Kind is memory or sqlite.
	Kind       string `mapstructure:"kind" yaml:"kind"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

type EngineConfig struct {
	InitialNodes    int `mapstructure:"initial_nodes" yaml:"initial_nodes"`
	InitialElements int `mapstructure:"initial_elements" yaml:"initial_elements"`
	// HistorySteps bounds how many steps of change history nets keep.
	HistorySteps int           `mapstructure:"history_steps" yaml:"history_steps"`
	StepInterval time.Duration `mapstructure:"step_interval" yaml:"step_interval"`
	// ModulatorBaselines are the resting values modulators decay toward.
	// Modulators not listed keep their value.
	ModulatorBaselines map[string]float64 `mapstructure:"modulator_baselines" yaml:"modulator_baselines,omitempty"`
	ModulatorDecayRate float64            `mapstructure:"modulator_decay_rate" yaml:"modulator_decay_rate"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Format is console or json.
	Format string `mapstructure:"format" yaml:"format"`
}

func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Kind:       "memory",
			SQLitePath: "nodenet.db",
		},
		Engine: EngineConfig{
			InitialNodes:    64,
			InitialElements: 256,
			HistorySteps:    100,
			StepInterval:    100 * time.Millisecond,

			ModulatorDecayRate: 0.1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from path and merges environment overrides. A
// missing file is created with default values first.
func Load(path string) (*Config, error) {
	path = expandPath(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Store.SQLitePath = expandPath(cfg.Store.SQLitePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg as YAML, creating the parent directory.
func Save(path string, cfg *Config) error {
	path = expandPath(path)
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Store.Kind {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("invalid store kind: %s (must be memory or sqlite)", c.Store.Kind)
	}
	if c.Engine.HistorySteps < 0 {
		return fmt.Errorf("engine.history_steps must not be negative")
	}
	if c.Engine.StepInterval <= 0 {
		return fmt.Errorf("engine.step_interval must be positive")
	}
	if c.Engine.ModulatorDecayRate < 0 || c.Engine.ModulatorDecayRate > 1 {
		return fmt.Errorf("engine.modulator_decay_rate must be within [0, 1]")
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s (must be console or json)", c.Logging.Format)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	defaults := Default()
	v.SetDefault("store.kind", defaults.Store.Kind)
	v.SetDefault("store.sqlite_path", defaults.Store.SQLitePath)
	v.SetDefault("engine.initial_nodes", defaults.Engine.InitialNodes)
	v.SetDefault("engine.initial_elements", defaults.Engine.InitialElements)
	v.SetDefault("engine.history_steps", defaults.Engine.HistorySteps)
	v.SetDefault("engine.step_interval", defaults.Engine.StepInterval)
	v.SetDefault("engine.modulator_decay_rate", defaults.Engine.ModulatorDecayRate)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
