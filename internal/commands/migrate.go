package commands

import (
	"mapdna/migrations"
	"mapdna/platform/db"

	"github.com/spf13/cobra"
)

func newMigrateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.session(cmd)
			if err != nil {
				return err
			}
			pool, err := s.pool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.RunMigrations(cmd.Context(), pool, migrations.FS, s.log)
		},
	}
}
