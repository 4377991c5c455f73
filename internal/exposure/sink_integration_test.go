//go:build integration

package exposure_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/exposure"
	"github.com/rafaeljc/skylab/internal/testsupport"
)

func TestRedisStreamSink_Integration(t *testing.T) {
	// 1. Infrastructure Setup
	ctx := context.Background()

	redisCtr, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisCtr.Terminate(ctx)

	const stream = "skylab:exposures:test"
	sink := exposure.NewRedisStreamSink(redisCtr.Client, stream, 1000)
	tracker, err := exposure.NewTracker(sink, 10, nil)
	require.NoError(t, err)
	defer tracker.Close()

	evalCtx := evaluation.NewContext(map[string]any{"user_id": "u-1", "device_id": "d-1"})
	results := evaluation.Results{
		"checkout": {Key: "on", Metadata: map[string]evaluation.Value{"experimentKey": evaluation.String("exp-1")}},
		"banner":   {Key: "off"},
	}

	// 2. Track twice; the second call is deduplicated.
	require.NoError(t, tracker.Track(ctx, evalCtx, results))
	require.NoError(t, tracker.Track(ctx, evalCtx, results))

	// 3. Verify the stream content
	entries, err := redisCtr.Client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "banner", entries[0].Values["flag_key"])
	assert.Equal(t, "off", entries[0].Values["variant"])

	assert.Equal(t, "checkout", entries[1].Values["flag_key"])
	assert.Equal(t, "exp-1", entries[1].Values["experiment_key"])
	assert.Equal(t, "u-1", entries[1].Values["user_id"])
	assert.Equal(t, "d-1", entries[1].Values["device_id"])
	assert.NotEqual(t, entries[0].Values["insert_id"], entries[1].Values["insert_id"])
}
