// Package main runs the hermes syncer: the background worker that keeps
// the Redis routing snapshots warm from PostgreSQL.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dmarins/hermes/internal/cache"
	"github.com/dmarins/hermes/internal/config"
	"github.com/dmarins/hermes/internal/database"
	"github.com/dmarins/hermes/internal/logger"
	"github.com/dmarins/hermes/internal/observability"
	"github.com/dmarins/hermes/internal/store"
	"github.com/dmarins/hermes/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if !cfg.Syncer.Enabled {
		return fmt.Errorf("syncer is disabled by configuration")
	}

	appLogger := logger.New(&cfg.App)
	slog.SetDefault(appLogger)
	cfg.LogConfig(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	snapshots := cache.NewRedisCache(redisClient, cfg.Redis.SnapshotTTL)
	defer snapshots.Close()

	obsServer := observability.NewServer(appLogger, &cfg.Observability,
		database.NewHealthChecker(pool),
		cache.NewHealthChecker(redisClient),
	)
	obsServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		_ = obsServer.Shutdown(shutdownCtx)
	}()

	service := syncer.New(appLogger, syncer.Config{Interval: cfg.Syncer.Interval},
		store.NewPostgresStore(pool), snapshots)

	// Blocks until SIGINT/SIGTERM cancels the context.
	return service.Run(ctx)
}
