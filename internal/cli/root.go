// Package cli implements ridectl, the operator command line for the ride query service.
package cli

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ridequery/internal/config"
	"ridequery/internal/database"
	"ridequery/internal/repository"
)

// App carries the state shared by every subcommand. Config and Logger are
// loaded from the environment when left nil.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	db *sqlx.DB
}

// NewRootCommand builds the ridectl command tree
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "ridectl",
		Short:         "Operate the ride query service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init()
		},
	}

	root.AddCommand(
		newAskCmd(app),
		newDatesCmd(app),
		newMigrateCmd(app),
		newCitiesCmd(app),
		newRidesCmd(app),
	)
	return root
}

func (a *App) init() error {
	if a.Config == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a.Config = cfg
	}
	if a.Logger == nil {
		logger, err := config.NewLogger(a.Config.Logging)
		if err != nil {
			return err
		}
		a.Logger = logger
	}
	return nil
}

// connect opens the database without touching the schema
func (a *App) connect(ctx context.Context) (*sqlx.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := database.Connect(ctx, a.Config)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

// repositories opens the database, applies pending migrations and returns the repositories
func (a *App) repositories(ctx context.Context) (*repository.Container, error) {
	db, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return repository.NewRepositories(db), nil
}

// Close releases the database handle and flushes the logger
func (a *App) Close() error {
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
