package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"focusfriends/backend/internal/config"
	"focusfriends/backend/internal/db"
	"focusfriends/backend/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer database.Close()

	result, err := db.RunMigrations(database)
	if err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}

	logger.Info("migrations applied successfully",
		zap.Uint("version", result.Version),
		zap.Bool("changed", result.Changed),
	)
}
