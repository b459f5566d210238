/*
Package config loads server configuration.

PURPOSE:
  One Config struct feeds every component: HTTP listener, storage driver,
  the calendar the engine uses for "today", evaluation defaults and the
  background warmer. Values come from (lowest to highest precedence):
    1. Defaults()
    2. A YAML file (unknown keys rejected)
    3. ROUTINE_* environment variables

YAML EXAMPLE:
  http:
    port: 8080
    allowed_origins: ["http://localhost:5173"]
  storage:
    driver: sqlite        # sqlite | badger | memory
    path: routines.db
  calendar:
    timezone: Europe/Paris
    day_start_offset: 3h  # negative offsets start the day the evening before
  evaluation:
    skip_counts_toward_quota: false
  scheduler:
    warm_interval: 1h     # 0 disables the warmer
  log:
    level: info           # debug | info | warn | error
    format: text          # text | json

ENVIRONMENT:
  ROUTINE_HTTP_PORT, ROUTINE_STORAGE_DRIVER, ROUTINE_STORAGE_PATH,
  ROUTINE_TIMEZONE, ROUTINE_DAY_START_OFFSET, ROUTINE_LOG_LEVEL,
  ROUTINE_LOG_FORMAT
*/
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/routine-tracker/routine"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
	DriverMemory = "memory"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Storage    StorageConfig    `yaml:"storage"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Log        LogConfig        `yaml:"log"`
}

type HTTPConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type CalendarConfig struct {
	Timezone       string        `yaml:"timezone"`
	DayStartOffset time.Duration `yaml:"day_start_offset"`
}

type EvaluationConfig struct {
	SkipCountsTowardQuota bool `yaml:"skip_counts_toward_quota"`
}

type SchedulerConfig struct {
	WarmInterval time.Duration `yaml:"warm_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a config that runs out of the box.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
		Storage:   StorageConfig{Driver: DriverSQLite, Path: "routines.db"},
		Calendar:  CalendarConfig{Timezone: "UTC"},
		Scheduler: SchedulerConfig{WarmInterval: time.Hour},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (optional; "" skips the file), applies env overrides and validates.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true) // Reject unknown fields
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("ROUTINE_HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ROUTINE_HTTP_PORT %q", ErrInvalidConfig, v)
		}
		c.HTTP.Port = port
	}
	if v, ok := lookup("ROUTINE_STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := lookup("ROUTINE_STORAGE_PATH"); ok {
		c.Storage.Path = v
	}
	if v, ok := lookup("ROUTINE_TIMEZONE"); ok {
		c.Calendar.Timezone = v
	}
	if v, ok := lookup("ROUTINE_DAY_START_OFFSET"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: ROUTINE_DAY_START_OFFSET %q", ErrInvalidConfig, v)
		}
		c.Calendar.DayStartOffset = d
	}
	if v, ok := lookup("ROUTINE_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("ROUTINE_LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	return nil
}

// Validate checks every field, including that the calendar can be built.
func (c Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("%w: http.port %d", ErrInvalidConfig, c.HTTP.Port)
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for sqlite", ErrInvalidConfig)
		}
	case DriverBadger, DriverMemory:
	default:
		return fmt.Errorf("%w: storage.driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if _, err := c.NewCalendar(); err != nil {
		return err
	}
	if c.Scheduler.WarmInterval < 0 {
		return fmt.Errorf("%w: scheduler.warm_interval must not be negative", ErrInvalidConfig)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// NewCalendar builds the engine calendar from the calendar section.
func (c Config) NewCalendar() (routine.Calendar, error) {
	return routine.NewCalendar(c.Calendar.Timezone, c.Calendar.DayStartOffset)
}

// NewLogger builds the process logger from the log section.
func (c Config) NewLogger() *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: log.level %q", ErrInvalidConfig, s)
	}
}
