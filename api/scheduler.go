/*
scheduler.go - Background checkpoint warmer

PURPOSE:
  Periodically folds every active routine through today so the first
  progress query after a day boundary resumes from a fresh checkpoint
  instead of replaying the whole history.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Archived routines and routines created in the future are skipped
  - A failed routine is logged and does not stop the pass

CONFIGURATION:
  - Interval: How often to warm (default: 1 hour)
  - Enabled: Whether the warmer is active (default: true)

USAGE:
  warmer := NewProgressWarmer(service, logger)
  warmer.Start()
  // ... later
  warmer.Stop()

SEE ALSO:
  - handlers.go: TriggerWarm endpoint (manual warm)
  - tracker/service.go: Warm
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/routine-tracker/tracker"
)

// ProgressWarmer keeps fold checkpoints current.
type ProgressWarmer struct {
	Service  *tracker.Service
	Interval time.Duration
	Enabled  bool

	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastRun    time.Time
	lastWarmed int
}

// NewProgressWarmer creates a new warmer.
func NewProgressWarmer(svc *tracker.Service, logger *slog.Logger) *ProgressWarmer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressWarmer{
		Service:  svc,
		Interval: time.Hour,
		Enabled:  true,
		logger:   logger.With(slog.String("component", "warmer")),
	}
}

// Start begins the warmer.
func (pw *ProgressWarmer) Start() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if !pw.Enabled || pw.Interval <= 0 {
		pw.logger.Info("disabled, not starting")
		return
	}
	if pw.ticker != nil {
		return
	}

	pw.ticker = time.NewTicker(pw.Interval)
	pw.stop = make(chan struct{})
	pw.wg.Add(1)

	go pw.run(pw.ticker.C, pw.stop)

	pw.logger.Info("started", slog.Duration("interval", pw.Interval))
}

// Stop stops the warmer and waits for an in-flight pass.
func (pw *ProgressWarmer) Stop() {
	pw.mu.Lock()
	ticker, stop := pw.ticker, pw.stop
	pw.ticker, pw.stop = nil, nil
	pw.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(stop)
		pw.wg.Wait()
		pw.logger.Info("stopped")
	}
}

func (pw *ProgressWarmer) run(ticks <-chan time.Time, stop <-chan struct{}) {
	defer pw.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	pw.warm(ctx)

	for {
		select {
		case <-ticks:
			pw.warm(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (pw *ProgressWarmer) warm(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := pw.Service.Warm(ctx)

	pw.mu.Lock()
	pw.lastRun = start
	pw.lastWarmed = n
	pw.mu.Unlock()

	if err != nil {
		pw.logger.Error("warm pass failed", slog.Int("warmed", n), slog.Any("error", err))
		return n, err
	}
	pw.logger.Debug("warm pass done",
		slog.Int("warmed", n),
		slog.Duration("took", time.Since(start)))
	return n, nil
}

// RunNow triggers an immediate pass (for testing/admin).
func (pw *ProgressWarmer) RunNow(ctx context.Context) (int, error) {
	return pw.warm(ctx)
}

// LastRun reports when the last pass started and how many routines it warmed.
func (pw *ProgressWarmer) LastRun() (time.Time, int) {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.lastRun, pw.lastWarmed
}

// NextRunTime returns when the next scheduled pass will occur.
func (pw *ProgressWarmer) NextRunTime() time.Time {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.lastRun.IsZero() {
		return time.Now()
	}
	return pw.lastRun.Add(pw.Interval)
}
