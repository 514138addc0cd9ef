package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ridequery/internal/database"
)

func newMigrateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the ride database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := app.connect(cmd.Context())
				if err != nil {
					return err
				}
				if err := database.Migrate(db); err != nil {
					return err
				}
				app.Logger.Info("Migrations applied", zap.String("driver", db.DriverName()))
				return printVersion(cmd, app)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := app.connect(cmd.Context())
				if err != nil {
					return err
				}
				if err := database.Rollback(db); err != nil {
					return err
				}
				return printVersion(cmd, app)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printVersion(cmd, app)
			},
		},
	)
	return cmd
}

func printVersion(cmd *cobra.Command, app *App) error {
	db, err := app.connect(cmd.Context())
	if err != nil {
		return err
	}
	version, dirty, err := database.Version(db)
	if err != nil {
		return err
	}
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
	return nil
}
