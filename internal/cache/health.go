package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/skylab/internal/observability"
)

// NewHealthChecker reports the shared Redis instance under "redis". It only
// needs the server to answer; an absent snapshot is the syncer's concern.
func NewHealthChecker(client redis.UniversalClient) observability.Checker {
	return observability.CheckerFunc("redis", func(ctx context.Context) error {
		if client == nil {
			return errors.New("no redis client")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis did not answer ping: %w", err)
		}
		return nil
	})
}
