package exposure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LogSink writes exposures to the structured log.
type LogSink struct {
	logger *slog.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a log sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "exposure")}
}

// Send logs one line per exposure.
func (s *LogSink) Send(ctx context.Context, exposures []Exposure) error {
	for _, e := range exposures {
		s.logger.InfoContext(ctx, EventType,
			slog.String("flag_key", e.FlagKey),
			slog.String("variant", e.Variant),
			slog.String("experiment_key", e.ExperimentKey),
			slog.String("user_id", e.Identity.UserID),
			slog.String("device_id", e.Identity.DeviceID),
		)
	}
	return nil
}

// RedisStreamSink appends exposures to a Redis stream. Each entry carries an
// insert_id so downstream consumers can drop redelivered events.
type RedisStreamSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

var _ Sink = (*RedisStreamSink)(nil)

// NewRedisStreamSink panics if client is nil. The stream is trimmed
// approximately to maxLen entries.
func NewRedisStreamSink(client redis.Cmdable, stream string, maxLen int64) *RedisStreamSink {
	if client == nil {
		panic("exposure: redis client cannot be nil")
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Send appends all exposures in a single pipeline.
func (s *RedisStreamSink) Send(ctx context.Context, exposures []Exposure) error {
	if len(exposures) == 0 {
		return nil
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range exposures {
			values, err := streamValues(e)
			if err != nil {
				return err
			}
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: s.stream,
				MaxLen: s.maxLen,
				Approx: true,
				Values: values,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append exposures to %s: %w", s.stream, err)
	}
	return nil
}

func streamValues(e Exposure) (map[string]any, error) {
	values := map[string]any{
		"insert_id":  uuid.NewString(),
		"event_type": EventType,
		"flag_key":   e.FlagKey,
		"timestamp":  e.Timestamp.Format(time.RFC3339Nano),
	}
	optional := map[string]string{
		"variant":        e.Variant,
		"experiment_key": e.ExperimentKey,
		"user_id":        e.Identity.UserID,
		"device_id":      e.Identity.DeviceID,
	}
	for k, v := range optional {
		if v != "" {
			values[k] = v
		}
	}
	if len(e.Metadata) > 0 {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata of %q: %w", e.FlagKey, err)
		}
		values["metadata"] = string(meta)
	}
	return values, nil
}
