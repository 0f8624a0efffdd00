// Package adminctl implements gatekeeperctl, the operator tool that applies
// migrations and creates accounts directly against the database.
package adminctl

import (
	"context"
	"database/sql"
	"io"
	"log/slog"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/spf13/cobra"
)

// dsnOverride replaces the configured DSN. The -c flag is registered for
// help output only; config.LoadConfig reads it from the process arguments.
var dsnOverride string

// NewRootCmd creates the root command for gatekeeperctl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatekeeperctl",
		Short: "Gatekeeper administration",
		Long: `gatekeeperctl applies database migrations and manages accounts of a
gatekeeper deployment. It reads the same configuration as the server.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&dsnOverride, "dsn", "", "database DSN (overrides configuration)")
	cmd.PersistentFlags().StringP("config", "c", "", "config file path (JSON or YAML)")

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserAddCmd())

	return cmd
}

func loadConfig() *config.Config {
	cfg := config.LoadConfig()
	if dsnOverride != "" {
		cfg.DatabaseDSN = dsnOverride
	}
	return cfg
}

// openDB opens and pings the configured database.
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := repomanager.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// newLogger writes text logs to w. An unknown level falls back to info.
func newLogger(w io.Writer, level string) logging.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}
