package main

import (
	"errors"

	pg "ebook-queue/internal/infra/db/postgres"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the library tables in Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cfg.Database.URL == "" {
			return errors.New("database.url is not configured")
		}
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pg.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info().Msg("library schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
