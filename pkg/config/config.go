package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/prodline/prodline/pkg/engine"
	"github.com/prodline/prodline/pkg/stores"
	"github.com/prodline/prodline/pkg/telemetry"
)

// Config is the top-level service configuration.
type Config struct {
	// Database configures the SQLite store.
	Database DatabaseConfig `yaml:"database" validate:"required"`

	// Engine configures commit retry and display behavior.
	Engine EngineConfig `yaml:"engine"`

	// Telemetry configures logging, tracing, metrics, and events.
	Telemetry *telemetry.Config `yaml:"telemetry"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" validate:"required"`

	// MaxOpenConns limits concurrent database connections.
	MaxOpenConns int `yaml:"max_open_conns" validate:"gte=0"`

	// MaxIdleConns limits idle pooled connections.
	MaxIdleConns int `yaml:"max_idle_conns" validate:"gte=0"`

	// ConnMaxLifetime bounds how long a pooled connection is reused.
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "90s"
// as well as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	default:
		return fmt.Errorf("invalid duration value: %v", raw)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// EngineConfig configures engine behavior.
type EngineConfig struct {
	// MaxCommitRetries bounds how often a submission retries after losing a
	// concurrency race.
	MaxCommitRetries int `yaml:"max_commit_retries" validate:"gte=0,lte=10"`

	// CustomerSampleSize caps the distinct customer names shown per batch.
	CustomerSampleSize int `yaml:"customer_sample_size" validate:"gte=0"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	opts := engine.DefaultOptions()
	return &Config{
		Database: DatabaseConfig{
			Path:            "prodline.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(5 * time.Minute),
		},
		Engine: EngineConfig{
			MaxCommitRetries:   opts.MaxCommitRetries,
			CustomerSampleSize: opts.CustomerSampleSize,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads a YAML configuration file, applying defaults for anything the
// file leaves unset. A missing path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// StoreConfig converts the database section into a store configuration.
func (c *Config) StoreConfig() stores.Config {
	return stores.Config{
		Path:            c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(c.Database.ConnMaxLifetime),
	}
}

// EngineOptions converts the engine section into engine options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		MaxCommitRetries:   c.Engine.MaxCommitRetries,
		CustomerSampleSize: c.Engine.CustomerSampleSize,
	}
}
