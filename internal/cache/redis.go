// Package cache holds Skylab's Redis layer (published flag snapshots, change
// notifications between planes) and the in-process L1 cache of evaluation
// results.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis keys and channels, all under the "skylab:" namespace.
const (
	SnapshotKey        = "skylab:snapshot"
	SnapshotVersionKey = "skylab:snapshot:version"
	SnapshotChannel    = "skylab:snapshots"
	ChangeChannel      = "skylab:changes"
)

// ErrSnapshotNotFound is returned when nothing was published yet.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// publishScript bumps the version counter, stores "<version>|<payload>" and
// announces the version, all in one atomic step.
//
// KEYS[1] version counter, KEYS[2] snapshot key
// ARGV[1] payload, ARGV[2] channel
var publishScript = redis.NewScript(`
local version = redis.call('INCR', KEYS[1])
redis.call('SET', KEYS[2], version .. '|' .. ARGV[1])
redis.call('PUBLISH', ARGV[2], version)
return version
`)

// Service is the Redis contract shared by the three binaries.
type Service interface {
	// PublishSnapshot stores a new serialized flag set and returns its version.
	PublishSnapshot(ctx context.Context, payload []byte) (int64, error)

	// GetSnapshot returns the latest published flag set.
	GetSnapshot(ctx context.Context) (int64, []byte, error)

	// WatchSnapshots calls fn with each newly published version until ctx ends.
	WatchSnapshots(ctx context.Context, fn func(version int64)) error

	// PublishChange signals that a flag was written at the given version.
	PublishChange(ctx context.Context, flagKey string, version int64) error

	// WatchChanges calls fn for each change signal until ctx ends.
	WatchChanges(ctx context.Context, fn func(flagKey string, version int64)) error

	// HealthCheck pings the server.
	HealthCheck(ctx context.Context) error

	// Close terminates the connection.
	Close() error
}

var _ Service = (*RedisCache)(nil)

// RedisCache implements Service on a go-redis client.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisCache wraps an established client. A nil logger falls back to slog.Default().
func NewRedisCache(client *redis.Client, logger *slog.Logger) *RedisCache {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, logger: logger}
}

// Client exposes the underlying client for components that need raw
// commands (exposure streams, pool monitoring).
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// PublishSnapshot runs the publish script.
func (c *RedisCache) PublishSnapshot(ctx context.Context, payload []byte) (int64, error) {
	version, err := publishScript.Run(ctx, c.client,
		[]string{SnapshotVersionKey, SnapshotKey},
		payload, SnapshotChannel,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return version, nil
}

// GetSnapshot reads and decodes the stored snapshot.
func (c *RedisCache) GetSnapshot(ctx context.Context) (int64, []byte, error) {
	raw, err := c.client.Get(ctx, SnapshotKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil, ErrSnapshotNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	version, payload, err := decodeSnapshot(raw)
	if err != nil {
		return 0, nil, err
	}
	return version, payload, nil
}

// WatchSnapshots blocks on the snapshot channel. Unparseable messages are
// logged and skipped.
func (c *RedisCache) WatchSnapshots(ctx context.Context, fn func(version int64)) error {
	return c.watch(ctx, SnapshotChannel, func(payload string) {
		version, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			c.logger.Warn("ignoring malformed snapshot notification", slog.String("payload", payload))
			return
		}
		fn(version)
	})
}

// PublishChange publishes "<key>:<version>" on the change channel.
func (c *RedisCache) PublishChange(ctx context.Context, flagKey string, version int64) error {
	if err := c.client.Publish(ctx, ChangeChannel, encodeChange(flagKey, version)).Err(); err != nil {
		return fmt.Errorf("failed to publish change of flag %q: %w", flagKey, err)
	}
	return nil
}

// WatchChanges blocks on the change channel.
func (c *RedisCache) WatchChanges(ctx context.Context, fn func(flagKey string, version int64)) error {
	return c.watch(ctx, ChangeChannel, func(payload string) {
		fn(decodeChange(payload))
	})
}

// watch subscribes to channel and feeds fn until ctx is cancelled or the
// subscription breaks. A cancelled context is a clean stop and returns nil.
func (c *RedisCache) watch(ctx context.Context, channel string, fn func(payload string)) error {
	sub := c.client.Subscribe(ctx, channel)
	defer func() { _ = sub.Close() }()

	// Wait for the subscription confirmation so no message published after
	// this call returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription to %s closed", channel)
			}
			fn(msg.Payload)
		}
	}
}

// HealthCheck verifies the connection to the Redis server.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
