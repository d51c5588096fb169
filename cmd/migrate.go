package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ananth-NQI/wamirror-backend/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		if cfg.UseMemoryStore {
			return fmt.Errorf("nothing to migrate: USE_MEMORY_STORE is set")
		}

		log.Info().Msg("📦 connecting to PostgreSQL database...")
		db, err := database.Connect(cfg, log)
		if err != nil {
			return err
		}
		log.Info().Msg("🔄 running database migrations...")
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info().Msg("✅ database migrations completed")
		return nil
	},
}
