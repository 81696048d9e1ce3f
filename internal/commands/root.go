// Package commands contains the mapdna CLI command definitions.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"mapdna/internal/elements"
	"mapdna/platform/config"
	"mapdna/platform/db"
	"mapdna/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// App carries the process dependencies commands need.
type App struct {
	// LoadConfig reads the configuration. Defaults to config.Load.
	LoadConfig func() (*config.Config, error)
}

// NewRootCmd creates and returns the root command for the CLI.
func NewRootCmd(app App) *cobra.Command {
	if app.LoadConfig == nil {
		app.LoadConfig = config.Load
	}

	rootCmd := &cobra.Command{
		Use:           "mapdna",
		Short:         "Render, replay and publish dynamic maps",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newBuildCmd(&app))
	rootCmd.AddCommand(newReplayCmd(&app))
	rootCmd.AddCommand(newMigrateCmd(&app))
	registerAssetsCmd(rootCmd, &app)

	return rootCmd
}

// session is the loaded configuration plus a logger writing to the
// command's error stream.
type session struct {
	cfg *config.Config
	log *logger.Logger
}

func (a *App) session(cmd *cobra.Command) (*session, error) {
	cfg, err := a.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &session{cfg: cfg, log: logger.NewWithWriter(cfg.Env, cmd.ErrOrStderr())}, nil
}

// elementStore opens the element repository when a database is configured.
// The returned close func is never nil.
func (s *session) elementStore(ctx context.Context) (elements.Source, elements.FieldResolver, func(), error) {
	if !s.cfg.IsDatabaseEnabled() {
		return nil, nil, func() {}, nil
	}

	pool, err := db.NewPool(ctx, s.cfg)
	if err != nil {
		return nil, nil, func() {}, fmt.Errorf("connect to database: %w", err)
	}
	repo := elements.NewRepository(pool, s.log)
	registry, err := repo.FieldRegistry(ctx)
	if err != nil {
		pool.Close()
		return nil, nil, func() {}, err
	}
	return repo, registry, pool.Close, nil
}

func (s *session) pool(ctx context.Context) (*pgxpool.Pool, error) {
	if !s.cfg.IsDatabaseEnabled() {
		return nil, fmt.Errorf("DATABASE_URL is not configured")
	}
	pool, err := db.NewPool(ctx, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
