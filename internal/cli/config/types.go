// Package config provides configuration management for the
// distillprep CLI.
package config

import (
	"fmt"
	"os"

	"github.com/distill-labs/distillprep/internal/mapping"
)

// Default configuration values.
const (
	DefaultCacheDir    = ".distillprep/cache"
	DefaultStateFile   = ".distillprep/state.db"
	DefaultMappingPath = "configs/variable_mapping.json"
)

// Config holds all CLI configuration options.
type Config struct {
	ProjectRoot string           `koanf:"-"`
	CacheDir    string           `koanf:"cache_dir"`
	StatePath   string           `koanf:"state_path"`
	MappingPath string           `koanf:"mapping_path"`
	Verbose     bool             `koanf:"verbose"`
	Geometry    mapping.Geometry `koanf:"geometry"`
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir is required")
	}
	if c.StatePath == "" {
		return fmt.Errorf("state_path is required")
	}
	if err := c.Geometry.Validate(); err != nil {
		return fmt.Errorf("invalid geometry: %w", err)
	}
	return nil
}

// EnsureCacheDir creates the cache directory if needed.
func (c *Config) EnsureCacheDir() error {
	if err := os.MkdirAll(c.CacheDir, 0750); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", c.CacheDir, err)
	}
	return nil
}
