package app

import (
	"fmt"

	"github.com/gonglijing/biodataBridge/internal/config"
	"github.com/gonglijing/biodataBridge/internal/database"
	"github.com/gonglijing/biodataBridge/internal/logger"
)

func initDatabase(cfg *config.Config) error {
	logger.Info("Initializing association database...", "path", cfg.DBPath)
	err := database.Init(database.Options{
		Path:         cfg.DBPath,
		MaxOpenConns: cfg.DBMaxOpenConns,
		BusyTimeout:  cfg.DBBusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}
