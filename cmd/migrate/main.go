package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/qbridge/backend/internal/infrastructure/config"
	"github.com/qbridge/backend/internal/infrastructure/logger"
	"github.com/qbridge/backend/internal/infrastructure/persistence"
	"github.com/qbridge/backend/internal/infrastructure/persistence/models"
)

// The schema is small enough that GORM's auto-migration covers it: two
// tables, both append-heavy, no data rewrites. Destructive changes go
// through a manual script.
func main() {
	log, err := logger.New(&logger.Config{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		_ = db.Close()
	}()

	log.Info("Running migrations", zap.String("driver", cfg.Database.Driver))

	if err := db.DB.AutoMigrate(
		&models.IdentityMappingModel{},
		&models.CheckpointModel{},
	); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}

	log.Info("Migrations applied")
}
