package adminctl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/spf13/cobra"
)

const defaultMigrateTimeout = 2 * time.Minute

// migrator is the part of the repository manager migrate needs.
type migrator interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := openDB(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer db.Close()

			return runMigrate(ctx, cmd, db, repomanager.NewPostgresRepositoryManager())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrateTimeout, "timeout for the migration run")

	return cmd
}

func runMigrate(ctx context.Context, cmd *cobra.Command, db *sql.DB, m migrator) error {
	if err := m.RunMigrations(ctx, db); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}
