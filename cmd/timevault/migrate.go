package main

import (
	"fmt"

	"github.com/spf13/cobra"

	capsulepg "timevault/internal/capsule/store/postgres"
	"timevault/internal/platform/postgres"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the capsule schema to the configured postgres database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := postgres.Open(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := capsulepg.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.InfoContext(ctx, "schema applied", "tables", capsulepg.Tables)
			return nil
		},
	}
}
