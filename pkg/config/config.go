// Package config holds the mount configuration and loads it from YAML files
// with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// EnvDB names the environment variable consulted when no database path is given.
const EnvDB = "NOTEFS_DB"

// DefaultDBPath is used when neither flag nor environment name a database.
const DefaultDBPath = "./document.db"

// Config is the notefs configuration.
type Config struct {
	DB    string      `yaml:"db"`
	Mount MountConfig `yaml:"mount"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return c.Mount.Validate()
}

// MountConfig configures a mount session.
type MountConfig struct {
	AllowOther  bool `yaml:"allow_other"`
	AllowRoot   bool `yaml:"allow_root"`
	AutoUnmount bool `yaml:"auto_unmount"`

	AttrTTL   time.Duration `yaml:"attr_ttl"`
	ScanLimit int           `yaml:"scan_limit"`
	Workers   int           `yaml:"workers"`
	Refresh   time.Duration `yaml:"refresh"`

	UID uint32 `yaml:"uid"`
	GID uint32 `yaml:"gid"`
}

// Validate validates the mount configuration.
func (c *MountConfig) Validate() error {
	if c.AllowOther && c.AllowRoot {
		return fmt.Errorf("allow_other and allow_root are mutually exclusive")
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.AttrTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ScanLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.Refresh, validation.Min(time.Duration(0))),
	)
}

// NewDefault returns a configuration with default values.
func NewDefault() *Config {
	return &Config{
		Mount: MountConfig{
			AttrTTL:   time.Second,
			ScanLimit: 100000,
			Workers:   1,
		},
	}
}

// DBPath returns the database location: the explicit path if set, else
// $NOTEFS_DB, else DefaultDBPath.
func (c *Config) DBPath() string {
	if c.DB != "" {
		return c.DB
	}
	if p := os.Getenv(EnvDB); p != "" {
		return p
	}
	return DefaultDBPath
}

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load loads configuration from a YAML file with environment variable expansion.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expandedData := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expandedData), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	return nil
}
