package config

import "time"

// SyncerConfig contains configuration for the Syncer worker service, which
// publishes flag snapshots from PostgreSQL into Redis.
type SyncerConfig struct {
	Enabled bool `default:"true"`

	// Interval is the full resync period. Change notifications trigger an
	// earlier sync.
	Interval time.Duration `default:"30s" validate:"gt=0"`

	// PublishTimeout bounds a single load-and-publish cycle.
	PublishTimeout time.Duration `envconfig:"PUBLISH_TIMEOUT" default:"10s" validate:"gt=0"`

	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0"`
	BaseRetryDelay time.Duration `envconfig:"BASE_RETRY_DELAY" default:"1s"`
}
