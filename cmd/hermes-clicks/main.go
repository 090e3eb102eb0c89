// Package main runs the hermes analytics worker: it consumes click events
// from the RabbitMQ queue and maintains the per-offer daily click
// aggregates.
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
	"github.com/rabbitmq/amqp091-go"

	"github.com/dmarins/hermes/internal/analytics"
	"github.com/dmarins/hermes/internal/config"
	"github.com/dmarins/hermes/internal/database"
	"github.com/dmarins/hermes/internal/logger"
	"github.com/dmarins/hermes/internal/observability"
	"github.com/dmarins/hermes/internal/store"
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

	if !cfg.AMQP.IsConfigured() {
		return fmt.Errorf("AMQP URL is required for the analytics worker")
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

	conn, err := amqp091.Dial(cfg.AMQP.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(cfg.AMQP.ClickQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare click queue: %w", err)
	}

	// Bound the number of unacked deliveries this worker holds.
	if err := ch.Qos(cfg.Analytics.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set channel qos: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	obsServer := observability.NewServer(appLogger, &cfg.Observability,
		database.NewHealthChecker(pool),
	)
	obsServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		_ = obsServer.Shutdown(shutdownCtx)
	}()

	worker := analytics.New(appLogger, analytics.Config{
		BatchSize:     cfg.Analytics.BatchSize,
		FlushInterval: cfg.Analytics.FlushInterval,
	}, store.NewPostgresStore(pool))

	return worker.Run(ctx, msgs)
}
