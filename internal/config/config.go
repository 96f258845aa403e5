// Package config holds tunables for the offline sync engine.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adorsys-gis/dgat-sync/internal/models"
)

// StoreConfig configures the local persistent store.
type StoreConfig struct {
	DataDir string `yaml:"data_dir"`
}

// QueueConfig configures the sync queue.
type QueueConfig struct {
	MaxSize     int           `yaml:"max_size"`
	MaxRetries  int           `yaml:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
}

// NetworkConfig configures the network monitor.
type NetworkConfig struct {
	HeartbeatURL      string        `yaml:"heartbeat_url"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	DebounceWindow    time.Duration `yaml:"debounce_window"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
}

// RemoteConfig configures remote delivery attempts.
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// Config is the full engine configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Queue   QueueConfig   `yaml:"queue"`
	Network NetworkConfig `yaml:"network"`
	Remote  RemoteConfig  `yaml:"remote"`

	// Strategies overrides the conflict resolution strategy per entity type.
	// Unlisted types use DefaultStrategy.
	Strategies      map[models.EntityType]models.Strategy `yaml:"strategies"`
	DefaultStrategy models.Strategy                       `yaml:"default_strategy"`
}

// Default returns a working configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			DataDir: ".",
		},
		Queue: QueueConfig{
			MaxSize:     1000,
			MaxRetries:  3,
			BackoffBase: time.Second,
			BackoffCap:  time.Hour,
		},
		Network: NetworkConfig{
			HeartbeatInterval: 30 * time.Second,
			DebounceWindow:    2 * time.Second,
			ProbeTimeout:      5 * time.Second,
		},
		Remote: RemoteConfig{
			AttemptTimeout: 15 * time.Second,
		},
		DefaultStrategy: models.StrategyServerWins,
	}
}

// Load overlays a YAML file onto the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants a caller-supplied config must hold.
func (c *Config) Validate() error {
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must be >= 0, got %d", c.Queue.MaxRetries)
	}
	if c.Queue.MaxSize <= 0 {
		return fmt.Errorf("queue.max_size must be > 0, got %d", c.Queue.MaxSize)
	}
	for t, s := range c.Strategies {
		if !t.Valid() {
			return fmt.Errorf("unknown entity type in strategies: %q", t)
		}
		switch s {
		case models.StrategyLocalWins, models.StrategyServerWins, models.StrategyManual, models.StrategyMerge:
		default:
			return fmt.Errorf("unknown resolution strategy %q for %q", s, t)
		}
	}
	return nil
}

// StrategyFor returns the resolution strategy configured for an entity type.
func (c *Config) StrategyFor(t models.EntityType) models.Strategy {
	if s, ok := c.Strategies[t]; ok {
		return s
	}
	if c.DefaultStrategy != "" {
		return c.DefaultStrategy
	}
	return models.StrategyServerWins
}
