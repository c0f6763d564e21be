// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	// Server configuration
	Server ServerConfig `toml:"server"`

	// Database configuration
	Database DatabaseConfig `toml:"database"`

	// Play engine configuration
	Play PlayConfig `toml:"play"`

	// Rating aggregator configuration
	Rating RatingConfig `toml:"rating"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port int `toml:"port"` // Listen port
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `toml:"path"` // Path to the SQLite database
}

// PlayConfig contains play engine settings.
type PlayConfig struct {
	TTL           string `toml:"ttl"`            // Play lifetime (e.g., "24h")
	MaxDepth      int    `toml:"max_depth"`      // Hierarchical nesting cap
	VoteTimeout   string `toml:"vote_timeout"`   // Pending-vote timeout ("" = disabled)
	SweepInterval string `toml:"sweep_interval"` // Expired-play sweep interval
}

// RatingConfig contains ELO aggregator settings.
type RatingConfig struct {
	Window  int     `toml:"window"`   // Completed plays per recompute
	KFactor float64 `toml:"k_factor"` // ELO K constant
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "",
		},
		Play: PlayConfig{
			TTL:           "24h",
			MaxDepth:      2,
			VoteTimeout:   "",
			SweepInterval: "10m",
		},
		Rating: RatingConfig{
			Window:  500,
			KFactor: 32,
		},
	}
}

// configPath returns the path to the configuration file.
func configPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".narimato")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}

	return filepath.Join(configDir, "config.toml"), nil
}

// Load loads the configuration from disk, applying environment
// overrides. Returns default config if the file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	config.applyEnv()
	return config, nil
}

// applyEnv overrides tuning knobs from the environment:
// PLAY_TTL_SECONDS, ELO_WINDOW, ELO_K.
func (c *Config) applyEnv() {
	if v := os.Getenv("PLAY_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Play.TTL = (time.Duration(secs) * time.Second).String()
		}
	}
	if v := os.Getenv("ELO_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Rating.Window = n
		}
	}
	if v := os.Getenv("ELO_K"); v != "" {
		if k, err := strconv.ParseFloat(v, 64); err == nil && k > 0 {
			c.Rating.KFactor = k
		}
	}
}

// Save saves the configuration to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Play.TTL); err != nil {
		return fmt.Errorf("invalid play TTL %q: %w", c.Play.TTL, err)
	}

	if c.Play.VoteTimeout != "" {
		if _, err := time.ParseDuration(c.Play.VoteTimeout); err != nil {
			return fmt.Errorf("invalid vote timeout %q: %w", c.Play.VoteTimeout, err)
		}
	}

	if _, err := time.ParseDuration(c.Play.SweepInterval); err != nil {
		return fmt.Errorf("invalid sweep interval %q: %w", c.Play.SweepInterval, err)
	}

	if c.Play.MaxDepth < 1 {
		return fmt.Errorf("max depth must be at least 1: %d", c.Play.MaxDepth)
	}

	if c.Rating.Window < 1 {
		return fmt.Errorf("rating window must be positive: %d", c.Rating.Window)
	}

	if c.Rating.KFactor <= 0 {
		return fmt.Errorf("rating K factor must be positive: %g", c.Rating.KFactor)
	}

	return nil
}

// GetPlayTTL returns the play TTL as a duration.
func (c *Config) GetPlayTTL() (time.Duration, error) {
	return time.ParseDuration(c.Play.TTL)
}

// GetVoteTimeout returns the vote timeout as a duration; zero when the
// policy is disabled.
func (c *Config) GetVoteTimeout() (time.Duration, error) {
	if c.Play.VoteTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Play.VoteTimeout)
}

// GetSweepInterval returns the expiry sweep interval as a duration.
func (c *Config) GetSweepInterval() (time.Duration, error) {
	return time.ParseDuration(c.Play.SweepInterval)
}
