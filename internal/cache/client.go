package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/skylab/internal/config"
	"github.com/rafaeljc/skylab/internal/logger"
)

const defaultPingTimeout = 5 * time.Second

// NewRedisClient opens the pool described by cfg and blocks until Redis
// answers a PING, doubling the wait between attempts.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		return nil, errors.New("redis config cannot be nil")
	}
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := awaitRedis(ctx, client, cfg); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// clientOptions maps cfg onto go-redis options. Connection fields from a URL
// win over the discrete host settings; pool tuning always comes from cfg.
func clientOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		opts = parsed
	}

	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolTimeout = cfg.PoolTimeout
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.MinRetryBackoff
	opts.MaxRetryBackoff = cfg.MaxRetryBackoff

	if cfg.TLSEnabled && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func awaitRedis(ctx context.Context, client *redis.Client, cfg *config.RedisConfig) error {
	log := logger.FromContext(ctx)
	attempts := max(cfg.PingMaxRetries, 1)
	wait := cfg.PingBackoff
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}

	var err error
	for n := 1; ; n++ {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			log.Info("connected to redis", slog.String("addr", client.Options().Addr), slog.Int("attempt", n))
			return nil
		}
		if n == attempts {
			return fmt.Errorf("failed to connect to redis after %d retries: %w", attempts, err)
		}

		log.Warn("redis not reachable yet",
			slog.Int("attempt", n),
			slog.Int("max_retries", attempts),
			slog.Duration("retry_in", wait),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to connect to redis: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
}
