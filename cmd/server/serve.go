package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/warp/routine-tracker/api"
	"github.com/warp/routine-tracker/config"
	"github.com/warp/routine-tracker/routine"
	"github.com/warp/routine-tracker/routine/store"
	"github.com/warp/routine-tracker/store/badger"
	"github.com/warp/routine-tracker/store/sqlite"
	"github.com/warp/routine-tracker/tracker"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.HTTP.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides http.port)")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	cal, err := cfg.NewCalendar()
	if err != nil {
		return err
	}

	repo, closer, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Error("close store", slog.Any("error", err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := tracker.NewService(repo, cal, logger,
		tracker.WithMetrics(tracker.NewMetrics(reg)),
		tracker.WithSkipCountsTowardQuota(cfg.Evaluation.SkipCountsTowardQuota),
	)
	handler := api.NewHandler(svc)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Registry:       reg,
	})

	warmer := api.NewProgressWarmer(svc, logger)
	warmer.Interval = cfg.Scheduler.WarmInterval
	warmer.Enabled = cfg.Scheduler.WarmInterval > 0
	warmer.Start()
	defer warmer.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.Int("port", cfg.HTTP.Port),
			slog.String("storage", cfg.Storage.Driver),
			slog.String("timezone", cal.Timezone()),
			slog.Duration("day_start_offset", cal.DayStartOffset()),
			slog.String("today", svc.Today().String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore builds the configured repository. The closer releases it.
func openStore(cfg config.StorageConfig) (routine.Repository, io.Closer, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return s, s, nil
	case config.DriverBadger:
		s, err := badger.New(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger: %w", err)
		}
		return s, s, nil
	case config.DriverMemory:
		return store.NewMemory(), closerFunc(func() error { return nil }), nil
	default:
		return nil, nil, fmt.Errorf("%w: storage.driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
