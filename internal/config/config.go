package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tkellman/chunkline/internal/db"
)

// Config represents the application configuration
type Config struct {
	Database db.Config      `toml:"database"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Lock     LockConfig     `toml:"lock"`
	Logging  LoggingConfig  `toml:"logging"`
}

// PipelineConfig holds processing run settings
type PipelineConfig struct {
	// PageSize is the number of files one chunk processor call consumes
	PageSize int `toml:"page_size"`
	// Workers is the size of the dispatch worker pool
	Workers int `toml:"workers"`
	// QueueDepth is the dispatch queue capacity
	QueueDepth int `toml:"queue_depth"`
	// PollInterval is the fixed backoff between polls of outstanding units
	PollInterval time.Duration `toml:"poll_interval"`
}

// LockConfig selects the run lock backend
type LockConfig struct {
	// Backend is "db" (fleet-wide, via the process_lock table) or "file"
	// (single host, advisory file lock)
	Backend string `toml:"backend"`
	// Path is the lock file location when Backend is "file"
	Path string `toml:"path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: db.Config{
			Driver:          "sqlite3",
			DSN:             "chunkline.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			SkipMigrations:  false,
		},
		Pipeline: PipelineConfig{
			PageSize:     250,
			Workers:      4,
			QueueDepth:   1024,
			PollInterval: 5 * time.Second,
		},
		Lock: LockConfig{
			Backend: "db",
			Path:    "chunkline.lock",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile loads configuration from a TOML file
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	return LoadFromFile(configPath)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver must be specified")
	}
	if c.Database.Driver != "sqlite3" {
		return fmt.Errorf("unsupported database driver: %s (must be sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN must be specified")
	}

	if c.Pipeline.PageSize <= 0 {
		return fmt.Errorf("pipeline page_size must be positive")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be positive")
	}
	if c.Pipeline.QueueDepth <= 0 {
		return fmt.Errorf("pipeline queue_depth must be positive")
	}
	if c.Pipeline.PollInterval <= 0 {
		return fmt.Errorf("pipeline poll_interval must be positive")
	}

	switch c.Lock.Backend {
	case "db":
	case "file":
		if c.Lock.Path == "" {
			return fmt.Errorf("lock path must be specified for the file backend")
		}
	default:
		return fmt.Errorf("invalid lock backend: %s (must be db or file)", c.Lock.Backend)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}
