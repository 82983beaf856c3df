package guetzli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the process-level configuration, loaded from a YAML file at
// startup. Every field has a usable zero-config default so the service can
// run unconfigured in development.
type Config struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen"`

	// StorageBase is the base directory under which every content entry's
	// directory is created. Empty means "<home>/.guetzli-data".
	StorageBase string `yaml:"storage_base"`

	// MaxUploadMB bounds the admitted source size, in mebibytes.
	MaxUploadMB int64 `yaml:"max_upload_mb"`

	// Parallelism is the transform-slot semaphore capacity.
	Parallelism int `yaml:"parallelism"`

	// JanitorIntervalMinutes is how often the janitor sweeps the store.
	JanitorIntervalMinutes int `yaml:"janitor_interval_minutes"`

	// JanitorMaxAgeHours is the age past which an entry is purged.
	JanitorMaxAgeHours int `yaml:"janitor_max_age_hours"`
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() *Config {
	return &Config{
		Listen:                 ":8080",
		StorageBase:            "",
		MaxUploadMB:            8,
		Parallelism:            2,
		JanitorIntervalMinutes: 30,
		JanitorMaxAgeHours:     24,
	}
}

// LoadConfig reads and parses a YAML config file, layering it over
// DefaultConfig so that a partial file only overrides what it sets.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("guetzli: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("guetzli: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("guetzli: invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for internally consistent values.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.JanitorIntervalMinutes <= 0 {
		return fmt.Errorf("janitor_interval_minutes must be positive")
	}
	if c.JanitorMaxAgeHours <= 0 {
		return fmt.Errorf("janitor_max_age_hours must be positive")
	}
	return nil
}

// MaxUploadBytes returns the configured upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}

// ResolvedStorageBase returns StorageBase, or "<home>/.guetzli-data" when
// StorageBase is unset.
func (c *Config) ResolvedStorageBase() (string, error) {
	if c.StorageBase != "" {
		return c.StorageBase, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("guetzli: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".guetzli-data"), nil
}
