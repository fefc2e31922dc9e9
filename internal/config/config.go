// Package config loads application settings from defaults, config
// files, environment variables and CLI flags. These are the app-level
// knobs (paths, lock timeout, log options); the workflow rules
// document is separate and owned by the rules package.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the application configuration.
type Config struct {
	// WorkDir is the pipeline working directory; every relative
	// path below resolves against it.
	WorkDir string `mapstructure:"workdir"`

	RulesFile     string `mapstructure:"rules_file"`
	StateFile     string `mapstructure:"state_file"`
	CheckpointDir string `mapstructure:"checkpoint_dir"`
	TrashDir      string `mapstructure:"trash_dir"`

	LockTimeout time.Duration `mapstructure:"lock_timeout"`

	Log LogConfig `mapstructure:"log"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (debug, info, warn, error)", c.Log.Level)
	}
	switch c.Log.Format {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("invalid log format %q (auto, json, text)", c.Log.Format)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive, got %s", c.LockTimeout)
	}
	if c.RulesFile == "" {
		return fmt.Errorf("rules_file must not be empty")
	}
	return nil
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.WorkDir, path)
}

// RulesPath returns the workflow rules document path, resolved
// against the working directory.
func (c *Config) RulesPath() string { return c.resolve(c.RulesFile) }

// StatePath returns the resolved pipeline state file path.
func (c *Config) StatePath() string { return c.resolve(c.StateFile) }

// CheckpointPath returns the resolved checkpoint directory.
func (c *Config) CheckpointPath() string { return c.resolve(c.CheckpointDir) }

// TrashPath returns the resolved trash directory.
func (c *Config) TrashPath() string { return c.resolve(c.TrashDir) }
