package main

import (
	"fmt"

	"conjoint/adapters/store"
	"conjoint/internal/errors"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the run storage schema at DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !appConfig.Database.Enabled() {
				return errors.ConfigInvalid("DATABASE_URL is required for migrate")
			}
			db, err := store.Open(cmd.Context(), appConfig.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date (%s)\n", appConfig.Database.Driver)
			return nil
		},
	}
}
