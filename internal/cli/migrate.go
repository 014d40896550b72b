package cli

import (
	"fmt"

	"github.com/Opizontas-Studio/dc-license-bot/internal/adapters/postgres"
	"github.com/Opizontas-Studio/dc-license-bot/internal/app/bootstrap"
	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				fmt.Fprintf(cmd.OutOrStdout(), "storage driver %q has no migrations\n", cfg.Storage.Driver)
				return nil
			}
			db, err := postgres.Connect(cmd.Context(), cfg.Storage.Postgres.DSN, postgres.ConnectOptions{
				MaxOpenConns: 2,
				LogQueries:   cfg.Storage.Postgres.LogQueries,
			})
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			applied, err := postgres.RunMigrations(cmd.Context(), db)
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			}
			return nil
		},
	}
}
