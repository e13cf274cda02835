// Package config holds all chronicle configuration: research tuning knobs,
// backend credentials, storage paths, and event streaming settings.
// Values come from defaults, an optional yaml file, and CHRONICLE_* env
// overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all chronicle configuration.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Research ResearchConfig `yaml:"research"`
	Events   EventsConfig   `yaml:"events"`
	Store    StoreConfig    `yaml:"store"`
	Export   ExportConfig   `yaml:"export"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// BackendConfig configures the research backend client.
type BackendConfig struct {
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	EnableSearch bool   `yaml:"enable_search"`
}

// ResearchConfig tunes the phase pipeline.
type ResearchConfig struct {
	Depth             string  `yaml:"depth"`              // shallow, moderate, deep, exhaustive
	DiscoveryQueries  int     `yaml:"discovery_queries"`  // max grounded discovery queries
	TargetEntities    int     `yaml:"target_entities"`    // default entity count when criteria omit it
	ComparisonPairs   int     `yaml:"comparison_pairs"`   // global pairwise comparison budget
	ValidationTargets int     `yaml:"validation_targets"` // top findings to verify
	MaxDeepening      int     `yaml:"max_deepening"`      // deepening loop iteration cap
	DepthThreshold    float64 `yaml:"depth_threshold"`    // findings below this get deepened
	QueryDelay        string  `yaml:"query_delay"`        // pacing between backend calls
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	HistoryLimit int    `yaml:"history_limit"`
	Heartbeat    string `yaml:"heartbeat"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ExportConfig configures file exports.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// LimitsConfig enforces system-wide resource constraints.
type LimitsConfig struct {
	MaxConcurrentMissions int `yaml:"max_concurrent_missions"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Model:        "gemini-2.5-flash",
			EnableSearch: true,
		},
		Research: ResearchConfig{
			Depth:             "deep",
			DiscoveryQueries:  5,
			TargetEntities:    10,
			ComparisonPairs:   10,
			ValidationTargets: 10,
			MaxDeepening:      2,
			DepthThreshold:    0.5,
			QueryDelay:        "2s",
		},
		Events: EventsConfig{
			HistoryLimit: 100,
			Heartbeat:    "30s",
		},
		Store: StoreConfig{
			DatabasePath: "./data/chronicle.db",
		},
		Export: ExportConfig{
			Dir: "./exports",
		},
		Limits: LimitsConfig{
			MaxConcurrentMissions: 4,
		},
	}
}

// Load reads configuration from the given yaml file on top of defaults,
// then applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHRONICLE_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.Backend.APIKey == "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("CHRONICLE_MODEL"); v != "" {
		c.Backend.Model = v
	}
	if v := os.Getenv("CHRONICLE_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("CHRONICLE_EXPORT_DIR"); v != "" {
		c.Export.Dir = v
	}
	if v := os.Getenv("CHRONICLE_MAX_DEEPENING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Research.MaxDeepening = n
		}
	}
	if v := os.Getenv("CHRONICLE_QUERY_DELAY"); v != "" {
		c.Research.QueryDelay = v
	}
}

// Validate checks that tuning values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Research.DiscoveryQueries < 1 {
		return fmt.Errorf("discovery_queries must be >= 1")
	}
	if c.Research.TargetEntities < 1 {
		return fmt.Errorf("target_entities must be >= 1")
	}
	if c.Research.MaxDeepening < 0 {
		return fmt.Errorf("max_deepening must be >= 0")
	}
	if c.Research.DepthThreshold < 0 || c.Research.DepthThreshold > 1 {
		return fmt.Errorf("depth_threshold must be in [0,1]")
	}
	if c.Limits.MaxConcurrentMissions < 1 {
		return fmt.Errorf("max_concurrent_missions must be >= 1")
	}
	if _, err := time.ParseDuration(c.Research.QueryDelay); err != nil {
		return fmt.Errorf("query_delay is not a valid duration: %w", err)
	}
	if _, err := time.ParseDuration(c.Events.Heartbeat); err != nil {
		return fmt.Errorf("heartbeat is not a valid duration: %w", err)
	}
	return nil
}

// QueryDelayDuration returns the parsed pacing interval.
func (c *Config) QueryDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.Research.QueryDelay)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// HeartbeatDuration returns the parsed subscriber idle window.
func (c *Config) HeartbeatDuration() time.Duration {
	d, err := time.ParseDuration(c.Events.Heartbeat)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
