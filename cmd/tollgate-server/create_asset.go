package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	dbpkg "github.com/tollgate-labs/tollgate/server/internal/db"
)

func newCreateAssetCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create-asset",
		Short: "Deploy the assets described in a YAML file and print their bundles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			seed, err := dbpkg.LoadSeedFile(file)
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			bundles, err := dbpkg.SeedDev(cmd.Context(), a.svc, seed, logger)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(bundles)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML asset file")
	return cmd
}
