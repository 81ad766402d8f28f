// Package config loads the service configuration from an optional YAML file,
// then applies environment overrides. Flags are applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"scrumboard/internal/models"
	"scrumboard/internal/util"
)

// SpaceAccess lists who may work in a space.
type SpaceAccess struct {
	Owner   string   `yaml:"owner"`
	Admins  []string `yaml:"admins,omitempty"`
	Members []string `yaml:"members,omitempty"`
}

// Config models scrumboard.yaml.
type Config struct {
	Addr                 string                 `yaml:"addr"`
	DBPath               string                 `yaml:"db_path"`
	StaticDir            string                 `yaml:"static_dir"`
	LogLevel             string                 `yaml:"log_level"`
	WIPEnforcement       models.WIPEnforcement  `yaml:"wip_enforcement"`
	MaxRetries           int                    `yaml:"max_retries"`
	RetryBackoff         time.Duration          `yaml:"retry_backoff"`
	DefaultSprintColumns []string               `yaml:"default_sprint_columns"`
	RepairOnStart        bool                   `yaml:"repair_on_start"`
	Spaces               map[string]SpaceAccess `yaml:"spaces,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Addr:                 ":8080",
		DBPath:               "data/scrumboard.db",
		StaticDir:            "web/dist",
		LogLevel:             "info",
		WIPEnforcement:       models.WIPAdvisory,
		MaxRetries:           3,
		RetryBackoff:         50 * time.Millisecond,
		DefaultSprintColumns: []string{"To Do", "In Progress", "Done"},
	}
}

// Load reads path when it exists and applies SCRUMBOARD_* environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.Addr = util.EnvOrDefault("SCRUMBOARD_ADDR", cfg.Addr)
	cfg.DBPath = util.EnvOrDefault("SCRUMBOARD_DB_PATH", cfg.DBPath)
	cfg.StaticDir = util.EnvOrDefault("SCRUMBOARD_STATIC_DIR", cfg.StaticDir)
	cfg.LogLevel = util.EnvOrDefault("SCRUMBOARD_LOG_LEVEL", cfg.LogLevel)
	cfg.WIPEnforcement = models.WIPEnforcement(util.EnvOrDefault("SCRUMBOARD_WIP_ENFORCEMENT", string(cfg.WIPEnforcement)))
	cfg.MaxRetries = util.EnvIntOrDefault("SCRUMBOARD_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryBackoff = util.EnvDurationOrDefault("SCRUMBOARD_RETRY_BACKOFF", cfg.RetryBackoff)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if _, ok := models.ValidWIPEnforcement[c.WIPEnforcement]; !ok {
		return fmt.Errorf("unknown wip_enforcement %q", c.WIPEnforcement)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff must not be negative")
	}
	for _, name := range c.DefaultSprintColumns {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("default_sprint_columns must not contain blank names")
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}
