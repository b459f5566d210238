package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/routine-tracker/routine"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAreValid(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Scheduler.WarmInterval)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 9090
storage:
  driver: badger
  path: ./data/badger
calendar:
  timezone: Europe/Paris
  day_start_offset: 3h
evaluation:
  skip_counts_toward_quota: true
log:
  format: json
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, DriverBadger, cfg.Storage.Driver)
	assert.Equal(t, 3*time.Hour, cfg.Calendar.DayStartOffset)
	assert.True(t, cfg.Evaluation.SkipCountsTowardQuota)
	assert.Equal(t, "info", cfg.Log.Level, "unset keys keep defaults")

	cal, err := cfg.NewCalendar()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", cal.Timezone())
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "storage:\n  engine: postgres\n")

	_, err := Load(path)

	assert.Error(t, err)
}

func TestApplyEnv_Overrides(t *testing.T) {
	env := map[string]string{
		"ROUTINE_HTTP_PORT":        "3000",
		"ROUTINE_TIMEZONE":         "America/New_York",
		"ROUTINE_DAY_START_OFFSET": "-21h",
		"ROUTINE_STORAGE_DRIVER":   "memory",
	}
	cfg := Defaults()

	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.HTTP.Port)
	assert.Equal(t, -21*time.Hour, cfg.Calendar.DayStartOffset)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := Defaults()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "ROUTINE_HTTP_PORT" {
			return "eighty", true
		}
		return "", false
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"bad driver", func(c *Config) { c.Storage.Driver = "postgres" }, ErrInvalidConfig},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }, ErrInvalidConfig},
		{"bad timezone", func(c *Config) { c.Calendar.Timezone = "Nowhere/Land" }, routine.ErrInvalidTimezone},
		{"offset too large", func(c *Config) { c.Calendar.DayStartOffset = 25 * time.Hour }, routine.ErrInvalidDayStartOffset},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, ErrInvalidConfig},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, ErrInvalidConfig},
		{"negative interval", func(c *Config) { c.Scheduler.WarmInterval = -time.Second }, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}
