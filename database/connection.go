package database

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Ananth-NQI/wamirror-backend/internal/config"
	"github.com/Ananth-NQI/wamirror-backend/internal/models"
)

// Connect opens the PostgreSQL connection described by cfg
func Connect(cfg *config.Config, logger zerolog.Logger) (*gorm.DB, error) {
	dsn := DSN(cfg)
	if cfg.InstanceConnectionName != "" {
		logger.Info().Str("instance", cfg.InstanceConnectionName).Msg("connecting to Cloud SQL via socket")
	} else {
		logger.Info().Str("host", cfg.DBHost).Msg("connecting to PostgreSQL")
	}

	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	if cfg.IsDevelopment() {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info().Msg("database connected")
	return db, nil
}

// DSN builds the connection string. DATABASE_URL wins; otherwise Cloud Run
// connects through the Cloud SQL unix socket and local development over TCP.
func DSN(cfg *config.Config) string {
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL
	}
	if cfg.InstanceConnectionName != "" {
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.InstanceConnectionName, cfg.DBUser, cfg.DBPass, cfg.DBName)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPass, cfg.DBName, cfg.DBPort)
}

// Migrate creates or updates the schema
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Session{},
		&models.Contact{},
		&models.Message{},
		&models.QuickReply{},
	)
}
