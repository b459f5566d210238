package api

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/routine-tracker/routine"
)

func TestProgressWarmer_RunNow(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()
	svc := s.handler.Service
	_, err := svc.Create(ctx, "Old", routine.Daily(testToday.AddDays(-400)))
	require.NoError(t, err)
	archived, err := svc.Create(ctx, "Gone", routine.Daily(testToday.AddDays(-10)))
	require.NoError(t, err)
	require.NoError(t, svc.Archive(ctx, archived.ID))

	pw := NewProgressWarmer(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n, err := pw.RunNow(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	last, warmed := pw.LastRun()
	assert.False(t, last.IsZero())
	assert.Equal(t, 1, warmed)
	assert.Equal(t, last.Add(time.Hour), pw.NextRunTime())
}

func TestProgressWarmer_StartStop(t *testing.T) {
	s := setupTestServer(t)
	_, err := s.handler.Service.Create(context.Background(), "Old", routine.Daily(testToday.AddDays(-40)))
	require.NoError(t, err)

	pw := NewProgressWarmer(s.handler.Service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	pw.Interval = 10 * time.Millisecond

	pw.Start()
	pw.Start() // already running
	pw.Stop()
	pw.Stop() // already stopped

	last, _ := pw.LastRun()
	assert.False(t, last.IsZero(), "runs once on start")

	// Restartable after a stop.
	pw.Start()
	pw.Stop()
}

func TestProgressWarmer_Disabled(t *testing.T) {
	s := setupTestServer(t)
	pw := NewProgressWarmer(s.handler.Service, nil)
	pw.Enabled = false

	pw.Start()
	pw.Stop()

	last, _ := pw.LastRun()
	assert.True(t, last.IsZero())
}
