package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memohai/smsrouter/db"
	"github.com/memohai/smsrouter/internal/config"
	dbpkg "github.com/memohai/smsrouter/internal/db"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down|version|force N>",
		Short: "Apply or roll back the PostgreSQL schema",
		Long: `Run golang-migrate against the configured PostgreSQL database.
SQLite and in-memory storage create their schema on open.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.config()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate needs storage driver %q, configured %q", config.DriverPostgres, cfg.Storage.Driver)
			}
			migrations, err := db.Migrations()
			if err != nil {
				return err
			}
			return dbpkg.RunMigrate(rootOpts.logger(cmd.ErrOrStderr()), cfg.Postgres, migrations, args[0], args[1:])
		},
	}
}
