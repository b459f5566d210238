/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the routine tracker server.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve      Run the HTTP API (default when no command is given)
  migrate    Apply pending SQLite migrations and exit

STARTUP SEQUENCE (serve):
  1. Load config (defaults, YAML file, ROUTINE_* environment)
  2. Build logger and calendar
  3. Open the configured store
  4. Create the tracker service and API handler
  5. Start the checkpoint warmer
  6. Start server with graceful shutdown

FLAGS:
  --config   YAML config file (optional)
  --db       Storage path override (SQLite file or Badger directory)
  --port     HTTP port override

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the warmer
  4. Close the store
  5. Exit

EXAMPLES:
  # Run with file database
  ./server serve --db ./data/routines.db

  # Run against Badger
  ROUTINE_STORAGE_DRIVER=badger ./server serve --db ./data/badger

  # Run on different port with a config file
  ./server serve --config routines.yaml --port 3000

SEE ALSO:
  - config/config.go: Configuration
  - api/server.go: Router configuration
  - tracker/service.go: Application service
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/routine-tracker/config"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	DBPath     string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "routine-tracker",
		Short:         "Routine tracker - recurrence and progress engine",
		Long:          "Tracks recurring routines, evaluates streaks and adherence, and serves them over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "storage path (overrides storage.path)")

	serve := newServeCommand(opts)
	cmd.AddCommand(serve)
	cmd.AddCommand(newMigrateCommand(opts))

	// Running the bare binary serves.
	cmd.RunE = serve.RunE
	cmd.Flags().AddFlagSet(serve.Flags())

	return cmd
}

// loadConfig applies the global flag overrides on top of config.Load.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.DBPath != "" {
		cfg.Storage.Path = o.DBPath
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}
