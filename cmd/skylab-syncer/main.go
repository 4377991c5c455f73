// Package main runs the Skylab syncer, which publishes the flag set stored in
// PostgreSQL as versioned snapshots in Redis for the data planes.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rafaeljc/skylab/internal/cache"
	"github.com/rafaeljc/skylab/internal/config"
	"github.com/rafaeljc/skylab/internal/database"
	"github.com/rafaeljc/skylab/internal/logger"
	"github.com/rafaeljc/skylab/internal/observability"
	"github.com/rafaeljc/skylab/internal/store"
	"github.com/rafaeljc/skylab/internal/syncer"
)

const poolMonitorInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	if err := cfg.RequireRedis(); err != nil {
		return err
	}

	cfg.App.Name = "skylab-syncer"
	appLogger := logger.New(&cfg.App)
	slog.SetDefault(appLogger)
	cfg.LogConfig(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger.ForComponent(appLogger, "migrations")); err != nil {
			return err
		}
	}
	go database.RunPoolMonitor(ctx, pool, poolMonitorInterval)

	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	redisCache := cache.NewRedisCache(redisClient, logger.ForComponent(appLogger, "cache"))
	defer redisCache.Close()
	go cache.RunPoolMonitor(ctx, redisClient, poolMonitorInterval)

	obsServer := observability.NewServer(appLogger, &cfg.Observability,
		database.NewHealthChecker(pool),
		cache.NewHealthChecker(redisClient),
	)
	if err := obsServer.Start(); err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("observability server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if !cfg.Syncer.Enabled {
		appLogger.Warn("syncer disabled by configuration, serving probes only")
		<-ctx.Done()
		return nil
	}

	svc := syncer.New(
		appLogger,
		cfg.Syncer,
		store.NewPostgresStore(pool),
		redisCache,
	)

	// Run blocks until the signal context is cancelled.
	err = svc.Run(ctx)
	appLogger.Info("service exited")
	return err
}
