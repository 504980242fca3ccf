package main

import (
	"fmt"

	"github.com/spf13/cobra"

	dbpkg "github.com/tollgate-labs/tollgate/server/internal/db"
)

func newMigrateCmd() *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite migrations and print their status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := dbpkg.Open(ctx, dbpkg.Config{Path: cfg.DBPath, Env: cfg.Env, SkipMigrate: statusOnly})
			if err != nil {
				return err
			}
			defer db.Close()

			status, err := dbpkg.Status(ctx, db)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range status {
				state := "pending"
				if m.Applied {
					state = "applied"
				}
				fmt.Fprintf(out, "%04d  %-8s %s\n", m.Version, state, m.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "Only report migration status")
	return cmd
}
