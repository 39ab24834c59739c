// Package config loads and persists the cube-advisor configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	// Data directory and storage configuration
	Data DataConfig `toml:"data"`

	// Scryfall bulk data configuration
	Scryfall ScryfallConfig `toml:"scryfall"`

	// CubeCobra upstream configuration
	CubeCobra CubeCobraConfig `toml:"cubecobra"`

	// Recommender configuration
	Recommender RecommenderConfig `toml:"recommender"`

	// HTTP server configuration
	Server ServerConfig `toml:"server"`

	// Application configuration
	App AppConfig `toml:"app"`
}

// DataConfig contains data directory and cube store settings.
type DataConfig struct {
	Dir          string `toml:"dir"`           // Root data directory ("" = ~/.cube-advisor)
	StoreBackend string `toml:"store_backend"` // Cube store backend: "file" or "sqlite"
}

// ScryfallConfig contains bulk card dataset settings.
type ScryfallConfig struct {
	BaseURL      string `toml:"base_url"`      // API base URL ("" = https://api.scryfall.com)
	WatchDataDir bool   `toml:"watch_datadir"` // Reload when the dataset file changes on disk
}

// CubeCobraConfig contains upstream cube fetch settings.
type CubeCobraConfig struct {
	BaseURL string `toml:"base_url"` // Cube JSON endpoint ("" = cubecobra.com default)
}

// RecommenderConfig contains recommendation engine settings.
type RecommenderConfig struct {
	Algorithm        string  `toml:"algorithm"`         // Default strategy type
	NeighborhoodSize int     `toml:"neighborhood_size"` // Similar cubes consulted per request
	MinSimilarity    float64 `toml:"min_similarity"`    // Minimum Jaccard score for a neighbor
	DefaultCount     int     `toml:"default_count"`     // Suggestions returned when unspecified
	ModelFile        string  `toml:"model_file"`        // Persisted model path ("" = none)
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `toml:"host"`             // Listen host
	Port            int    `toml:"port"`             // Listen port
	ReadTimeout     string `toml:"read_timeout"`     // Request read timeout (e.g., "15s")
	WriteTimeout    string `toml:"write_timeout"`    // Response write timeout
	ShutdownTimeout string `toml:"shutdown_timeout"` // Graceful shutdown deadline
}

// AppConfig contains general application settings.
type AppConfig struct {
	DebugMode bool `toml:"debug_mode"` // Enable debug logging
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Dir:          "",
			StoreBackend: "file",
		},
		Scryfall: ScryfallConfig{
			BaseURL:      "",
			WatchDataDir: true,
		},
		CubeCobra: CubeCobraConfig{
			BaseURL: "",
		},
		Recommender: RecommenderConfig{
			Algorithm:        "cube_based_collaborative_filtering",
			NeighborhoodSize: 20,
			MinSimilarity:    0,
			DefaultCount:     10,
			ModelFile:        "",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     "15s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
		},
		App: AppConfig{
			DebugMode: false,
		},
	}
}

// DataDir resolves the root data directory, defaulting to ~/.cube-advisor.
func (c *Config) DataDir() (string, error) {
	if c.Data.Dir != "" {
		return c.Data.Dir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cube-advisor"), nil
}

// configPath returns the path to the configuration file.
func configPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".cube-advisor")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}

	return filepath.Join(configDir, "config.toml"), nil
}

// Load loads the configuration from disk. Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration from an explicit path. Returns default
// config if the file doesn't exist.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
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
	switch c.Data.StoreBackend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown store backend %q (want \"file\" or \"sqlite\")", c.Data.StoreBackend)
	}

	if c.Recommender.NeighborhoodSize <= 0 {
		return fmt.Errorf("neighborhood size must be positive: %d", c.Recommender.NeighborhoodSize)
	}
	if c.Recommender.MinSimilarity < 0 || c.Recommender.MinSimilarity > 1 {
		return fmt.Errorf("min similarity must be in [0, 1]: %g", c.Recommender.MinSimilarity)
	}
	if c.Recommender.DefaultCount <= 0 {
		return fmt.Errorf("default count must be positive: %d", c.Recommender.DefaultCount)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	for _, entry := range []struct {
		name  string
		value string
	}{
		{"read timeout", c.Server.ReadTimeout},
		{"write timeout", c.Server.WriteTimeout},
		{"shutdown timeout", c.Server.ShutdownTimeout},
	} {
		if _, err := time.ParseDuration(entry.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", entry.name, entry.value, err)
		}
	}

	return nil
}

// GetReadTimeout returns the server read timeout as a duration.
func (c *Config) GetReadTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.ReadTimeout)
}

// GetWriteTimeout returns the server write timeout as a duration.
func (c *Config) GetWriteTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.WriteTimeout)
}

// GetShutdownTimeout returns the graceful shutdown deadline as a duration.
func (c *Config) GetShutdownTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.ShutdownTimeout)
}
