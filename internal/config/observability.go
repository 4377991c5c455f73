package config

import "time"

// ObservabilityConfig configures the side server for probes and metrics.
// Every binary runs one, separate from its API listener.
type ObservabilityConfig struct {
	Port string `default:"9090" validate:"tcpport"`

	// Timeout applies to reads, writes and idle connections alike.
	Timeout time.Duration `default:"5s" validate:"min=1s"`

	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/healthz" validate:"startswith=/"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz" validate:"startswith=/"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics" validate:"startswith=/"`
}
