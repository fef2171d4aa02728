package main

import (
	"context"
	"flag"
	"time"

	"points/internal/config"
	"points/internal/db"

	"go.uber.org/zap"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the *.sql migration files")
	flag.Parse()

	cfg := config.Load()
	logger, err := zap.NewDevelopment()
	if err != nil {
		logger = zap.NewExample()
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	applied, err := db.Migrate(ctx, database, *dir, logger)
	if err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("migrations complete", zap.Int("applied", len(applied)))
}
