// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/orgevents/internal/database"
	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config captures environment driven configuration for the events service.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"text"`

	// ReminderInterval is how often the in-process runner scans for
	// reminders. Zero disables it.
	ReminderInterval time.Duration `env:"REMINDER_INTERVAL" envDefault:"5m"`
	NotifyWorkers    int           `env:"NOTIFY_WORKERS" envDefault:"4"`
	NotifyQueueDepth int           `env:"NOTIFY_QUEUE_DEPTH" envDefault:"1024"`

	Database database.Config
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the service configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	var invalid []string
	switch cfg.StoreDriver {
	case DriverMemory, DriverPostgres:
	default:
		invalid = append(invalid, "STORE_DRIVER")
	}
	if _, ok := parseLevel(cfg.LogLevel); !ok {
		invalid = append(invalid, "LOG_LEVEL")
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		invalid = append(invalid, "LOG_FORMAT")
	}
	if cfg.ReminderInterval < 0 {
		invalid = append(invalid, "REMINDER_INTERVAL")
	}
	if cfg.NotifyWorkers <= 0 {
		invalid = append(invalid, "NOTIFY_WORKERS")
	}
	if cfg.NotifyQueueDepth <= 0 {
		invalid = append(invalid, "NOTIFY_QUEUE_DEPTH")
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(value string) (slog.Level, bool) {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
