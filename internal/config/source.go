package config

import "time"

const (
	// SourceRedis reads snapshots published by the syncer.
	SourceRedis = "redis"
	// SourceFile reads a local JSON or YAML flag file.
	SourceFile = "file"
)

// SourceConfig selects where the data plane loads its flag set from.
// Whether Redis is reachable for the redis kind is checked by RequireSource,
// since only the data plane reads a flag source.
type SourceConfig struct {
	Kind string `default:"redis" validate:"oneof=redis file"`

	// Path of the flag file, required when Kind is "file".
	Path string `validate:"required_if=Kind file,trimmed"`

	// RefreshInterval is the polling period. Watch notifications refresh earlier.
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"30s" validate:"gt=0"`

	// Watch enables push based refresh (fsnotify for files, pub/sub for Redis).
	Watch bool `default:"true"`
}
