package controlapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/rafaeljc/skylab/internal/observability"
)

// notifyChangeAsync signals the syncer that key changed. The signal only
// shortens propagation delay; the syncer's periodic pass picks up writes whose
// signal was lost.
func (a *API) notifyChangeAsync(log *slog.Logger, key string, version int64) {
	go func() {
		// Detached from the HTTP request, which ends before the retries do.
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		for i := 0; i <= notifyMaxRetries; i++ {
			err := a.cache.PublishChange(ctx, key, version)
			if err == nil {
				observability.ControlPlaneChangeNotifications.WithLabelValues("success").Inc()
				return
			}

			if i == notifyMaxRetries || ctx.Err() != nil {
				observability.ControlPlaneChangeNotifications.WithLabelValues("fail").Inc()
				log.Error("failed to publish flag change after retries",
					slog.String("flag_key", key),
					slog.Int64("version", version),
					slog.String("error", err.Error()))
				return
			}

			log.Warn("failed to publish flag change, retrying",
				slog.String("flag_key", key),
				slog.Int("attempt", i+1),
				slog.String("error", err.Error()))

			select {
			case <-ctx.Done():
			case <-time.After(a.notifyBaseDelay * time.Duration(1<<i)):
			}
		}
	}()
}
