// Package main runs the Skylab control plane: the REST API that stores flag
// configurations in PostgreSQL and signals the syncer after each write.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rafaeljc/skylab/internal/cache"
	"github.com/rafaeljc/skylab/internal/config"
	"github.com/rafaeljc/skylab/internal/controlapi"
	"github.com/rafaeljc/skylab/internal/database"
	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/logger"
	"github.com/rafaeljc/skylab/internal/observability"
	"github.com/rafaeljc/skylab/internal/store"
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

	// -------------------------------------------------------------------------
	// 1. Configuration & Logging
	// -------------------------------------------------------------------------
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

	cfg.App.Name = "skylab-control-plane"
	appLogger := logger.New(&cfg.App)
	slog.SetDefault(appLogger)
	cfg.LogConfig(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------------------------------------------------------------------------
	// 2. Infrastructure
	// -------------------------------------------------------------------------
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

	// -------------------------------------------------------------------------
	// 3. Wiring
	// -------------------------------------------------------------------------
	engine := evaluation.New(logger.ForComponent(appLogger, "evaluation"))
	defer engine.Close()

	repo := store.NewPostgresStore(pool)
	apiOpts := []controlapi.Option{controlapi.WithAPIKeyHash(cfg.Server.Control.APIKeyHash)}
	if cfg.Server.Control.APIKeyHash == "" && cfg.App.Environment != config.EnvironmentProduction {
		appLogger.Warn("control plane authentication disabled: no API key hash configured")
		apiOpts = []controlapi.Option{controlapi.WithoutAuth()}
	}
	api := controlapi.NewAPI(logger.ForComponent(appLogger, "controlapi"), repo, redisCache, engine, apiOpts...)

	srvCfg := cfg.Server.Control
	server := &http.Server{
		Addr:              net.JoinHostPort(srvCfg.Host, srvCfg.Port),
		Handler:           api.Router,
		ReadTimeout:       srvCfg.ReadTimeout,
		ReadHeaderTimeout: srvCfg.ReadHeaderTimeout,
		WriteTimeout:      srvCfg.WriteTimeout,
		IdleTimeout:       srvCfg.IdleTimeout,
		MaxHeaderBytes:    srvCfg.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		appLogger.Info("control plane listening", slog.String("addr", server.Addr), slog.Bool("tls", srvCfg.TLSEnabled))
		var err error
		if srvCfg.TLSEnabled {
			err = server.ListenAndServeTLS(srvCfg.TLSCert, srvCfg.TLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("failed to serve HTTP: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 4. Graceful Shutdown
	// -------------------------------------------------------------------------
	var serveErr error
	select {
	case serveErr = <-errChan:
	case <-ctx.Done():
		appLogger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http server shutdown failed", slog.String("error", err.Error()))
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	appLogger.Info("service exited")
	return serveErr
}
