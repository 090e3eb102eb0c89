package config

import "time"

// SyncerConfig contains configuration for the cache-warming worker
// (hermes-syncer).
type SyncerConfig struct {
	Enabled  bool          `envconfig:"ENABLED" default:"true"`
	Interval time.Duration `envconfig:"INTERVAL" default:"30s" validate:"gte=1s"`
}

// AnalyticsConfig contains configuration for the click-aggregation worker
// (hermes-clicks).
type AnalyticsConfig struct {
	// BatchSize flushes a batch as soon as this many events are buffered.
	BatchSize int `envconfig:"BATCH_SIZE" default:"100" validate:"min=1"`

	// FlushInterval flushes whatever is buffered on this cadence.
	FlushInterval time.Duration `envconfig:"FLUSH_INTERVAL" default:"2s" validate:"gt=0"`

	// Prefetch is the AMQP QoS prefetch count.
	Prefetch int `envconfig:"PREFETCH" default:"100" validate:"min=1"`
}
