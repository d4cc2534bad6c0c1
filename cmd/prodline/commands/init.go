package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the database",
		Long: `Create the SQLite database and run schema migrations.

Safe to run repeatedly; already-applied migrations are skipped.`,
		Example: `  # Initialize with the default database path
  prodline init

  # Initialize a specific database file
  prodline init --db /var/lib/prodline/prod.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.store.Migrate(ctx); err != nil {
					return err
				}
				a.tel.Logger.WithField("path", a.cfg.Database.Path).Info("Database initialized")
				fmt.Printf("Database initialized at %s\n", a.cfg.Database.Path)
				return nil
			})
		},
	}

	return cmd
}
