package main

import (
	"fmt"
	"log"

	"taskflow/backend/internal/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pool.Migrate(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			log.Printf("Schema up to date (%s)", cfg.Database.Driver)
			return nil
		},
	}
}
