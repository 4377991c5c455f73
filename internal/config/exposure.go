package config

const (
	// ExposureSinkLog writes exposures to the structured log.
	ExposureSinkLog = "log"
	// ExposureSinkRedis appends exposures to a Redis stream.
	ExposureSinkRedis = "redis"
)

// ExposureConfig controls exposure tracking on the data plane.
type ExposureConfig struct {
	Enabled bool   `default:"true"`
	Sink    string `default:"log" validate:"oneof=log redis"`

	// Stream is the Redis stream key exposures are appended to.
	Stream string `default:"skylab:exposures" validate:"required,trimmed"`

	// StreamMaxLen caps the stream length (approximate trimming).
	StreamMaxLen int64 `envconfig:"STREAM_MAX_LEN" default:"100000" validate:"min=1"`

	// MaxIdentities bounds how many identities the dedupe tracker remembers.
	MaxIdentities int `envconfig:"MAX_IDENTITIES" default:"100000" validate:"min=1"`
}

// needsRedis reports whether exposures go to a Redis stream.
func (c *ExposureConfig) needsRedis() bool {
	return c.Enabled && c.Sink == ExposureSinkRedis
}
