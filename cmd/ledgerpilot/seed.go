package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mverde/ledgerpilot/internal/config"
	"github.com/mverde/ledgerpilot/internal/database"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create baseline category entities for the owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.SeedDefaults(cmd.Context(), db, flagOwner); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "seeded defaults for", flagOwner)
			return nil
		},
	}
}
