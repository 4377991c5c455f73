package config

import (
	"fmt"
	"time"
)

// Production floors for the evaluation cache. Below them the cache churns
// faster than it saves work.
const (
	minProductionL1CacheCapacity = 1000
	minProductionL1CacheTTL      = 10 * time.Second
)

// DataPlaneConfig configures the gRPC evaluation server.
type DataPlaneConfig struct {
	Host string `default:"0.0.0.0" validate:"required,trimmed"`
	Port string `default:"50051" validate:"tcpport"`

	MaxConcurrentStreams uint32        `envconfig:"MAX_CONCURRENT_STREAMS" default:"100"`
	KeepaliveTime        time.Duration `envconfig:"KEEPALIVE_TIME" default:"120s"`
	KeepaliveTimeout     time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`
	MaxConnectionAge     time.Duration `envconfig:"MAX_CONNECTION_AGE" default:"300s"`

	// L1 cache of evaluation results, keyed by snapshot version and request.
	L1CacheCapacity int           `envconfig:"L1_CACHE_CAPACITY" default:"10000" validate:"min=1"`
	L1CacheTTL      time.Duration `envconfig:"L1_CACHE_TTL" default:"60s" validate:"gt=0"`
}

func (c *DataPlaneConfig) productionErrors() []error {
	var errs []error
	if c.L1CacheCapacity < minProductionL1CacheCapacity {
		errs = append(errs, fmt.Errorf("data plane L1 cache capacity must be at least %d in production, got %d",
			minProductionL1CacheCapacity, c.L1CacheCapacity))
	}
	if c.L1CacheTTL < minProductionL1CacheTTL {
		errs = append(errs, fmt.Errorf("data plane L1 cache TTL must be at least %s in production, got %s",
			minProductionL1CacheTTL, c.L1CacheTTL))
	}
	return errs
}
