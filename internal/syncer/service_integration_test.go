//go:build integration

package syncer_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/skylab/internal/config"
	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/source"
	"github.com/rafaeljc/skylab/internal/store"
	"github.com/rafaeljc/skylab/internal/syncer"
	"github.com/rafaeljc/skylab/internal/testsupport"
)

func onConfig(deps ...string) evaluation.Flag {
	return evaluation.Flag{
		Variants:     map[string]evaluation.Variant{"on": {Key: "on", Value: evaluation.String("on")}},
		Segments:     []evaluation.Segment{{Variant: "on"}},
		Dependencies: deps,
	}
}

func TestSyncer_Integration(t *testing.T) {
	// 1. Infrastructure Setup
	ctx := context.Background()

	pgCtr, err := testsupport.StartPostgresContainer(ctx)
	require.NoError(t, err)
	defer pgCtr.Terminate(ctx)

	redisCtr, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisCtr.Terminate(ctx)

	repo := store.NewPostgresStore(pgCtr.DB)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.SyncerConfig{
		Interval:       time.Hour,
		PublishTimeout: 5 * time.Second,
		MaxRetries:     1,
		BaseRetryDelay: 10 * time.Millisecond,
	}
	svc := syncer.New(logger, cfg, repo, redisCtr.Cache)

	// The data plane side reads what the syncer publishes.
	dataSource := source.NewRedisSource(redisCtr.Cache, logger)

	publishedKeys := func() []string {
		snap, err := dataSource.Fetch(ctx)
		if err != nil {
			return nil
		}
		keys := make([]string, 0, len(snap.Ordered))
		for _, f := range snap.Ordered {
			keys = append(keys, f.Key)
		}
		return keys
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	t.Run("Should publish the initial set", func(t *testing.T) {
		require.Eventually(t, func() bool {
			_, _, err := redisCtr.Cache.GetSnapshot(ctx)
			return err == nil
		}, 5*time.Second, 50*time.Millisecond)

		assert.Empty(t, publishedKeys())
	})

	t.Run("Should republish after a change notification", func(t *testing.T) {
		parent := &store.Flag{Key: "parent", Config: onConfig()}
		child := &store.Flag{Key: "child", Config: onConfig("parent")}
		require.NoError(t, repo.CreateFlag(ctx, child))
		require.NoError(t, repo.CreateFlag(ctx, parent))

		require.NoError(t, redisCtr.Cache.PublishChange(ctx, parent.Key, parent.Version))

		assert.Eventually(t, func() bool {
			keys := publishedKeys()
			return len(keys) == 2 && keys[0] == "parent" && keys[1] == "child"
		}, 5*time.Second, 50*time.Millisecond)
	})

	t.Run("Should drop deleted flags", func(t *testing.T) {
		_, err := repo.DeleteFlag(ctx, "child", 1)
		require.NoError(t, err)

		require.NoError(t, redisCtr.Cache.PublishChange(ctx, "child", 2))

		assert.Eventually(t, func() bool {
			keys := publishedKeys()
			return len(keys) == 1 && keys[0] == "parent"
		}, 5*time.Second, 50*time.Millisecond)
	})

	t.Run("Should not bump the version without changes", func(t *testing.T) {
		before, _, err := redisCtr.Cache.GetSnapshot(ctx)
		require.NoError(t, err)

		// A notification without a database change publishes nothing.
		require.NoError(t, redisCtr.Cache.PublishChange(ctx, "parent", 1))
		time.Sleep(300 * time.Millisecond)

		after, _, err := redisCtr.Cache.GetSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}
