package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/kgeval/internal/infrastructure/database/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run-history database schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the given number of migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(mg *postgres.Migrator) error {
				if err := mg.Down(steps); err != nil {
					return err
				}
				PrintSuccess(cmd, fmt.Sprintf("rolled back %d migration(s)", steps))
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(mg *postgres.Migrator) error {
					if err := mg.Up(); err != nil {
						return err
					}
					PrintSuccess(cmd, "schema up to date")
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(mg *postgres.Migrator) error {
					st, err := mg.Status()
					if err != nil {
						return err
					}
					return PrintResult(cmd, st)
				})
			},
		},
	)
	return cmd
}

// withMigrator connects regardless of database.enabled; running migrate at
// all means the caller wants the database.
func withMigrator(cmd *cobra.Command, fn func(*postgres.Migrator) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	conn, err := postgres.NewConnection(cmd.Context(), cliCtx.Config.Database, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	mg, err := postgres.NewMigrator(conn, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer mg.Close()
	return fn(mg)
}
