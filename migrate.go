package main

import (
	"fmt"

	"github.com/AnTengye/dealflow/service"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Apply the embedded SQL migrations to the database configured under
database.url. Migrations are idempotent and safe to run on every deploy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrate requires database.driver postgres, got %q", cfg.Database.Driver)
			}

			ctx := cmd.Context()
			db, err := service.ConnectPostgres(ctx, cfg.Database.URL, cfg.Database.MaxConns)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			return service.RunMigrations(ctx, db)
		},
	}
}
