package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/routine-tracker/config"
	"github.com/warp/routine-tracker/store/sqlite"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != config.DriverSQLite {
				return fmt.Errorf("migrate needs the sqlite driver, configured: %s", cfg.Storage.Driver)
			}

			s, err := sqlite.New(cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer s.Close()

			version, err := s.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", cfg.Storage.Path, version)
			return nil
		},
	}
}
