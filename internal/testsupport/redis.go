package testsupport

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rafaeljc/skylab/internal/cache"
	"github.com/rafaeljc/skylab/internal/config"
)

const redisImage = "redis:7-alpine"

// RedisContainer bundles a Redis server with a raw client and the snapshot
// cache built on it.
type RedisContainer struct {
	Container testcontainers.Container
	Client    *goredis.Client
	Cache     *cache.RedisCache
	URL       string
}

// Terminate closes the cache (and with it the client), then removes the
// container.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Cache.Close()
	return c.Container.Terminate(ctx)
}

// StartRedisContainer boots Redis and connects through the production
// client constructor, so the ping retry path is exercised too.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	ctr, err := redis.Run(ctx, redisImage)
	if err != nil {
		return nil, fmt.Errorf("redis container: %w", err)
	}

	url, err := ctr.ConnectionString(ctx)
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("redis connection string: %w", err)
	}

	client, err := cache.NewRedisClient(ctx, &config.RedisConfig{
		URL:            url,
		PoolSize:       10,
		PingMaxRetries: 5,
		PingBackoff:    500 * time.Millisecond,
	})
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("redis client: %w", err)
	}

	return &RedisContainer{
		Container: ctr,
		Client:    client,
		Cache:     cache.NewRedisCache(client, quietLogger()),
		URL:       url,
	}, nil
}
