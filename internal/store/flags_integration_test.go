//go:build integration

// Package store_test exercises the repository against a real PostgreSQL
// container, through the exported API only.
package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/store"
	"github.com/rafaeljc/skylab/internal/testsupport"
)

func uniqueKey(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func onOffConfig() evaluation.Flag {
	return evaluation.Flag{
		Variants: map[string]evaluation.Variant{
			"on":  {Key: "on", Value: evaluation.String("on")},
			"off": {Key: "off", Value: evaluation.String("off")},
		},
		Segments: []evaluation.Segment{{
			Conditions: [][]evaluation.Condition{{{
				Selector: []string{"context", "user_id"},
				Op:       evaluation.OpIs,
				Values:   []string{"u-1"},
			}}},
			Variant: "on",
		}, {Variant: "off"}},
		Metadata: map[string]evaluation.Value{"experimentKey": evaluation.String("exp-1")},
	}
}

func TestPostgresStore_Integration(t *testing.T) {
	// 1. Infrastructure Setup
	ctx := context.Background()

	pgContainer, err := testsupport.StartPostgresContainer(ctx)
	require.NoError(t, err, "failed to start postgres container")
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	repo := store.NewPostgresStore(pgContainer.DB)

	// 2. Scenarios (sequential, they share the container)

	t.Run("CreateFlag_Success", func(t *testing.T) {
		// Arrange
		f := &store.Flag{Key: uniqueKey("create"), Description: "created by test", Config: onOffConfig()}

		// Act
		err := repo.CreateFlag(ctx, f)

		// Assert
		require.NoError(t, err)
		assert.NotZero(t, f.ID)
		assert.Equal(t, int64(1), f.Version)
		assert.False(t, f.CreatedAt.IsZero())
		assert.False(t, f.IsDeleted)

		fetched, err := repo.GetFlagByKey(ctx, f.Key)
		require.NoError(t, err)
		assert.Equal(t, f.Key, fetched.Config.Key, "config key must mirror the row key")
		assert.Equal(t, "created by test", fetched.Description)
		assert.Equal(t, "exp-1", fetched.Config.Metadata["experimentKey"].String())
		assert.Len(t, fetched.Config.Segments, 2)
	})

	t.Run("CreateFlag_DuplicateKey_ShouldFail", func(t *testing.T) {
		key := uniqueKey("conflict")
		require.NoError(t, repo.CreateFlag(ctx, &store.Flag{Key: key, Config: onOffConfig()}))

		err := repo.CreateFlag(ctx, &store.Flag{Key: key, Config: onOffConfig()})

		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrFlagExists))
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("GetFlagByKey_NotFound", func(t *testing.T) {
		_, err := repo.GetFlagByKey(ctx, uniqueKey("ghost"))

		assert.True(t, errors.Is(err, store.ErrFlagNotFound))
	})

	t.Run("ListFlags_Pagination", func(t *testing.T) {
		for i := range 15 {
			require.NoError(t, repo.CreateFlag(ctx, &store.Flag{Key: uniqueKey(fmt.Sprintf("page-%d", i)), Config: onOffConfig()}))
		}

		page, total, err := repo.ListFlags(ctx, 10, 0)

		require.NoError(t, err)
		assert.GreaterOrEqual(t, total, int64(15))
		assert.Len(t, page, 10)
		for i := 0; i < len(page)-1; i++ {
			assert.Greater(t, page[i].ID, page[i+1].ID, "pages are newest first")
		}
	})

	t.Run("ListAllFlags_AscendingIDs", func(t *testing.T) {
		flags, err := repo.ListAllFlags(ctx)

		require.NoError(t, err)
		require.NotEmpty(t, flags)
		for i := 0; i < len(flags)-1; i++ {
			assert.Less(t, flags[i].ID, flags[i+1].ID)
		}
		assert.Len(t, store.Configs(flags), len(flags))
	})

	t.Run("UpdateFlag_PartialUpdate", func(t *testing.T) {
		f := &store.Flag{Key: uniqueKey("update"), Description: "original", Config: onOffConfig()}
		require.NoError(t, repo.CreateFlag(ctx, f))

		desc := "changed"
		updated, err := repo.UpdateFlag(ctx, &store.UpdateFlagParams{Key: f.Key, Version: f.Version, Description: &desc})

		require.NoError(t, err)
		assert.Equal(t, "changed", updated.Description)
		assert.Len(t, updated.Config.Segments, 2, "config should remain unchanged")
		assert.Equal(t, int64(2), updated.Version)
		assert.True(t, updated.UpdatedAt.After(updated.CreatedAt) || updated.UpdatedAt.Equal(updated.CreatedAt))
	})

	t.Run("UpdateFlag_ReplaceConfig", func(t *testing.T) {
		f := &store.Flag{Key: uniqueKey("replace"), Config: onOffConfig()}
		require.NoError(t, repo.CreateFlag(ctx, f))

		cfg := onOffConfig()
		cfg.Segments = []evaluation.Segment{{Variant: "on"}}
		cfg.Dependencies = []string{"parent"}
		updated, err := repo.UpdateFlag(ctx, &store.UpdateFlagParams{Key: f.Key, Version: 1, Config: &cfg})

		require.NoError(t, err)
		assert.Len(t, updated.Config.Segments, 1)
		assert.Equal(t, []string{"parent"}, updated.Config.Dependencies)
		assert.Equal(t, f.Key, updated.Config.Key)
	})

	t.Run("UpdateFlag_VersionConflict", func(t *testing.T) {
		f := &store.Flag{Key: uniqueKey("stale"), Config: onOffConfig()}
		require.NoError(t, repo.CreateFlag(ctx, f))
		first := "first"
		_, err := repo.UpdateFlag(ctx, &store.UpdateFlagParams{Key: f.Key, Version: 1, Description: &first})
		require.NoError(t, err)

		stale := "stale"
		updated, err := repo.UpdateFlag(ctx, &store.UpdateFlagParams{Key: f.Key, Version: 1, Description: &stale})

		assert.Nil(t, updated)
		assert.True(t, errors.Is(err, store.ErrVersionConflict))

		fetched, err := repo.GetFlagByKey(ctx, f.Key)
		require.NoError(t, err)
		assert.Equal(t, "first", fetched.Description)
		assert.Equal(t, int64(2), fetched.Version)
	})

	t.Run("UpdateFlag_NotFound", func(t *testing.T) {
		desc := "x"
		updated, err := repo.UpdateFlag(ctx, &store.UpdateFlagParams{Key: uniqueKey("missing"), Version: 1, Description: &desc})

		assert.Nil(t, updated)
		assert.True(t, errors.Is(err, store.ErrFlagNotFound))
	})

	t.Run("DeleteFlag_SoftDeletesAndAllowsKeyReuse", func(t *testing.T) {
		key := uniqueKey("reuse")
		original := &store.Flag{Key: key, Config: onOffConfig()}
		require.NoError(t, repo.CreateFlag(ctx, original))

		deletedVersion, err := repo.DeleteFlag(ctx, key, original.Version)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deletedVersion)

		_, err = repo.GetFlagByKey(ctx, key)
		assert.True(t, errors.Is(err, store.ErrFlagNotFound))

		again := &store.Flag{Key: key, Config: onOffConfig()}
		require.NoError(t, repo.CreateFlag(ctx, again))
		assert.NotEqual(t, original.ID, again.ID)
		assert.Greater(t, again.Version, deletedVersion, "versions continue across incarnations")

		var count int
		require.NoError(t, pgContainer.DB.QueryRow(ctx, `SELECT COUNT(*) FROM flags WHERE key = $1`, key).Scan(&count))
		assert.Equal(t, 2, count)
	})

	t.Run("DeleteFlag_StaleVersion", func(t *testing.T) {
		f := &store.Flag{Key: uniqueKey("delete-stale"), Config: onOffConfig()}
		require.NoError(t, repo.CreateFlag(ctx, f))

		_, err := repo.DeleteFlag(ctx, f.Key, 7)

		assert.True(t, errors.Is(err, store.ErrVersionConflict))
	})

	t.Run("DeleteFlag_NotFound", func(t *testing.T) {
		_, err := repo.DeleteFlag(ctx, uniqueKey("nothing"), 1)

		assert.True(t, errors.Is(err, store.ErrFlagNotFound))
	})
}
