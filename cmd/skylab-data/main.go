// Package main runs the Skylab data plane.
//
// It is the composition root of the gRPC evaluation API: it loads flag
// snapshots from the configured source (the syncer's Redis snapshot or a
// local flag file), keeps them fresh, and serves evaluations from memory.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/rafaeljc/skylab/internal/cache"
	"github.com/rafaeljc/skylab/internal/config"
	"github.com/rafaeljc/skylab/internal/dataapi"
	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/exposure"
	"github.com/rafaeljc/skylab/internal/logger"
	"github.com/rafaeljc/skylab/internal/observability"
	"github.com/rafaeljc/skylab/internal/source"
)

const (
	poolMonitorInterval   = 15 * time.Second
	cacheMetricsInterval  = 10 * time.Second
	refresherStopDeadline = 5 * time.Second
)

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
	if err := cfg.RequireSource(); err != nil {
		return err
	}

	cfg.App.Name = "skylab-data-plane"
	appLogger := logger.New(&cfg.App)
	slog.SetDefault(appLogger)
	cfg.LogConfig(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checkers := []observability.Checker{}

	// -------------------------------------------------------------------------
	// 2. Infrastructure (Redis is optional with a file source)
	// -------------------------------------------------------------------------
	var (
		redisClient *goredis.Client
		redisCache  *cache.RedisCache
	)
	if cfg.Redis.IsConfigured() {
		redisClient, err = cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		redisCache = cache.NewRedisCache(redisClient, logger.ForComponent(appLogger, "cache"))
		defer redisCache.Close()

		go cache.RunPoolMonitor(ctx, redisClient, poolMonitorInterval)
		checkers = append(checkers, cache.NewHealthChecker(redisClient))
	}

	var src source.Source
	switch cfg.Source.Kind {
	case config.SourceFile:
		src = source.NewFileSource(cfg.Source.Path, appLogger)
	default:
		src = source.NewRedisSource(redisCache, appLogger)
	}

	// -------------------------------------------------------------------------
	// 3. Wiring
	// -------------------------------------------------------------------------
	snapshots := source.NewStore()
	checkers = append(checkers, snapshots)

	l1, err := cache.NewMemoryCache(cfg.Server.Data.L1CacheCapacity, cfg.Server.Data.L1CacheTTL)
	if err != nil {
		return fmt.Errorf("failed to build l1 cache: %w", err)
	}
	defer l1.Close()
	go l1.RunMetricsCollector(ctx, cacheMetricsInterval)

	engine := evaluation.New(logger.ForComponent(appLogger, "evaluation"))
	defer engine.Close()

	tracker, err := newTracker(cfg, redisClient, appLogger)
	if err != nil {
		return err
	}
	if tracker != nil {
		defer tracker.Close()
	}

	api := dataapi.NewAPI(logger.ForComponent(appLogger, "dataapi"), snapshots, l1, engine, tracker)

	refresher := source.NewRefresher(appLogger, source.RefresherConfig{
		Interval: cfg.Source.RefreshInterval,
		Watch:    cfg.Source.Watch,
		OnUpdate: api.OnSnapshot,
	}, src, snapshots)

	refresherDone := make(chan error, 1)
	go func() { refresherDone <- refresher.Run(ctx) }()

	obsServer := observability.NewServer(appLogger, &cfg.Observability, checkers...)
	if err := obsServer.Start(); err != nil {
		return err
	}

	// -------------------------------------------------------------------------
	// 4. gRPC Server
	// -------------------------------------------------------------------------
	srvCfg := cfg.Server.Data
	addr := net.JoinHostPort(srvCfg.Host, srvCfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer(
		grpc.MaxConcurrentStreams(srvCfg.MaxConcurrentStreams),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:             srvCfg.KeepaliveTime,
			Timeout:          srvCfg.KeepaliveTimeout,
			MaxConnectionAge: srvCfg.MaxConnectionAge,
		}),
		grpc.ChainUnaryInterceptor(
			dataapi.RequestLoggerInterceptor(logger.ForComponent(appLogger, "grpc")),
			dataapi.MetricsInterceptor(),
		),
	)
	api.Register(grpcServer)
	// Lets grpcurl list the service. Its messages are well known Struct types.
	reflection.Register(grpcServer)

	errChan := make(chan error, 1)
	go func() {
		appLogger.Info("data plane listening",
			slog.String("addr", addr),
			slog.String("source", cfg.Source.Kind),
			slog.Bool("exposures", tracker != nil),
		)
		if err := grpcServer.Serve(listener); err != nil {
			errChan <- fmt.Errorf("failed to serve gRPC: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 5. Graceful Shutdown
	// -------------------------------------------------------------------------
	var serveErr error
	select {
	case serveErr = <-errChan:
	case <-ctx.Done():
		appLogger.Info("shutdown signal received")
	}
	stop()

	// GracefulStop has no deadline of its own.
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cfg.App.ShutdownTimeout):
		appLogger.Warn("graceful stop timed out, forcing")
		grpcServer.Stop()
	}

	select {
	case <-refresherDone:
	case <-time.After(refresherStopDeadline):
		appLogger.Warn("flag refresher did not stop in time")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	appLogger.Info("service exited")
	return serveErr
}

// newTracker builds the exposure tracker, or returns nil when exposure
// tracking is disabled.
func newTracker(cfg *config.Config, redisClient *goredis.Client, appLogger *slog.Logger) (*exposure.Tracker, error) {
	if !cfg.Exposure.Enabled {
		return nil, nil
	}

	var sink exposure.Sink
	switch cfg.Exposure.Sink {
	case config.ExposureSinkRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("exposure sink %q requires redis", cfg.Exposure.Sink)
		}
		sink = exposure.NewRedisStreamSink(redisClient, cfg.Exposure.Stream, cfg.Exposure.StreamMaxLen)
	default:
		sink = exposure.NewLogSink(appLogger)
	}

	tracker, err := exposure.NewTracker(sink, cfg.Exposure.MaxIdentities, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to build exposure tracker: %w", err)
	}
	return tracker, nil
}
