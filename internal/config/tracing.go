package config

import "fmt"

// TracingConfig holds OpenTelemetry settings. Disabled by default; when
// enabled, spans are exported to a Jaeger collector.
type TracingConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"false"`

	// Endpoint is the Jaeger collector endpoint
	// (e.g., http://localhost:14268/api/traces).
	Endpoint string `envconfig:"ENDPOINT"`

	// SampleRatio is the fraction of requests to trace (1.0 = all).
	SampleRatio float64 `envconfig:"SAMPLE_RATIO" default:"1.0" validate:"gte=0,lte=1"`
}

// Validate checks the tracing configuration.
func (t *TracingConfig) Validate() error {
	if t.Enabled && t.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if t.Endpoint != "" {
		if _, err := parseAndValidateURL(t.Endpoint, []string{"http", "https"}); err != nil {
			return fmt.Errorf("invalid tracing endpoint: %w", err)
		}
	}
	return nil
}
