package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/routine-tracker/config"
	"github.com/warp/routine-tracker/routine"
)

func TestOpenStore_Drivers(t *testing.T) {
	dir := t.TempDir()
	tests := []config.StorageConfig{
		{Driver: config.DriverMemory},
		{Driver: config.DriverSQLite, Path: filepath.Join(dir, "nested", "routines.db")},
		{Driver: config.DriverBadger, Path: filepath.Join(dir, "badger")},
	}

	for _, cfg := range tests {
		t.Run(cfg.Driver, func(t *testing.T) {
			ctx := context.Background()
			repo, closer, err := openStore(cfg)
			require.NoError(t, err)
			defer closer.Close()

			at := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
			r, err := routine.New("rt-1", "Stretch", routine.Daily(routine.DayFromDate(2025, time.March, 1)), at)
			require.NoError(t, err)
			require.NoError(t, repo.Save(ctx, r.State()))

			loaded, err := repo.Load(ctx, "rt-1")
			require.NoError(t, err)
			assert.Equal(t, "Stretch", loaded.Name)
		})
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, _, err := openStore(config.StorageConfig{Driver: "postgres"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routines.db")
	var out bytes.Buffer

	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate", "--db", path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "schema version 2")
}

func TestLoadConfig_DBOverride(t *testing.T) {
	opts := &rootOptions{DBPath: "/tmp/other.db"}

	cfg, err := opts.loadConfig()

	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.Path)
}
