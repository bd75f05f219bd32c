package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/autochat-io/autochat-backend/internal/config"
)

var DB *gorm.DB

// Connect opens the PostgreSQL connection. Production (Cloud Run with
// Cloud SQL) connects via Unix socket, local development via TCP.
func Connect(cfg *config.Config, log *zap.Logger) error {
	var dsn string
	if cfg.InstanceConnectionName != "" {
		dsn = fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.InstanceConnectionName, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		log.Info("connecting to Cloud SQL via socket",
			zap.String("instance", cfg.InstanceConnectionName))
	} else {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
		log.Info("connecting to PostgreSQL",
			zap.String("host", cfg.DBHost), zap.String("database", cfg.DBName))
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("database connect: %w", err)
	}

	DB = db
	log.Info("database connected")
	return nil
}
