// Package main initializes and runs the hermes router: the visitor-facing
// service that resolves /r redirects and serves the snippet-config API.
//
// It acts as the composition root, wiring PostgreSQL, the Redis snapshot
// cache, the click recorder, and the HTTP server lifecycle.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"

	"github.com/dmarins/hermes/internal/cache"
	"github.com/dmarins/hermes/internal/config"
	"github.com/dmarins/hermes/internal/database"
	"github.com/dmarins/hermes/internal/logger"
	"github.com/dmarins/hermes/internal/observability"
	"github.com/dmarins/hermes/internal/recorder"
	"github.com/dmarins/hermes/internal/resolver"
	"github.com/dmarins/hermes/internal/routerapi"
	"github.com/dmarins/hermes/internal/store"
	"github.com/dmarins/hermes/internal/tracing"
	"github.com/dmarins/hermes/internal/validation"
)

// main is the application entrypoint.
func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

// run executes the service lifecycle.
func run() error {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.New(&cfg.App)
	slog.SetDefault(appLogger)
	cfg.LogConfig(appLogger)

	ctx := context.Background()

	// -------------------------------------------------------------------------
	// Infrastructure
	// -------------------------------------------------------------------------

	shutdownTracing, err := tracing.Init(ctx, &cfg.App, &cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	pgStore := store.NewPostgresStore(pool)
	validation.AssertNotNil(pgStore, "postgres store")

	snapshots := cache.NewRedisCache(redisClient, cfg.Redis.SnapshotTTL)
	defer snapshots.Close()

	l1, err := cache.NewMemoryCache(cfg.Router.L1CacheCapacity, cfg.Router.L1CacheTTL)
	if err != nil {
		return fmt.Errorf("failed to create memory cache: %w", err)
	}
	defer l1.Close()

	reader := cache.NewReadThroughReader(pgStore, l1, snapshots, appLogger)

	// -------------------------------------------------------------------------
	// Click pipeline (optional queue publisher)
	// -------------------------------------------------------------------------

	var publisher recorder.Publisher
	if cfg.AMQP.Enabled && cfg.AMQP.IsConfigured() {
		conn, err := amqp091.Dial(cfg.AMQP.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open rabbitmq channel: %w", err)
		}

		publisher, err = recorder.NewAMQPPublisher(ch, cfg.AMQP.ClickQueue)
		if err != nil {
			return fmt.Errorf("failed to declare click queue: %w", err)
		}
	} else {
		appLogger.Warn("click queue disabled; analytics pipeline will not receive events")
	}

	rec := recorder.New(pgStore, publisher, appLogger)

	// -------------------------------------------------------------------------
	// HTTP servers
	// -------------------------------------------------------------------------

	res := resolver.New(reader, appLogger)
	api := routerapi.NewAPI(res, rec, &cfg.Router, cfg.Snippet)

	obsServer := observability.NewServer(appLogger, &cfg.Observability,
		database.NewHealthChecker(pool),
		cache.NewHealthChecker(redisClient),
	)
	obsServer.Start()

	handler := tracing.Middleware(cfg.App.Name)(api.Router)

	addr := fmt.Sprintf("%s:%s", cfg.Router.Host, cfg.Router.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       cfg.Router.ReadTimeout,
		ReadHeaderTimeout: cfg.Router.ReadHeaderTimeout,
		WriteTimeout:      cfg.Router.WriteTimeout,
		IdleTimeout:       cfg.Router.IdleTimeout,
		MaxHeaderBytes:    cfg.Router.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		appLogger.Info("starting router server",
			slog.String("addr", addr),
			slog.Bool("tls", cfg.Router.TLSEnabled),
		)

		var err error
		if cfg.Router.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Router.TLSCert, cfg.Router.TLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("router server failed: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Graceful shutdown
	// -------------------------------------------------------------------------

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		appLogger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("router server shutdown failed", slog.String("error", err.Error()))
	}

	// Drain in-flight click recordings before the pool closes under them.
	rec.Close()

	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Error("tracing shutdown failed", slog.String("error", err.Error()))
	}

	appLogger.Info("service exited successfully")
	return nil
}
