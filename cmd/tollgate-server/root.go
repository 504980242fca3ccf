package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tollgate-labs/tollgate/server/internal/config"
)

const flagDBPath = "db-path"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tollgate-server",
		Short:         "Permissioned token compliance server",
		SilenceUsage: true,
	}
	root.PersistentFlags().String(flagDBPath, "", "SQLite database path (overrides TOLLGATE_DB_PATH)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newCreateAssetCmd(),
		newTokenCmd(),
	)
	return root
}

// loadConfig reads the environment and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if p, _ := cmd.Flags().GetString(flagDBPath); p != "" {
		cfg.DBPath = p
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(os.Stdout, opts)).With("svc", "tollgate-server")
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)).With("svc", "tollgate-server")
}
