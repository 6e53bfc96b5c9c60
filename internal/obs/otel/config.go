package otel

import "time"

// Config holds the configuration for the OTel meter setup.
type Config struct {
	// Enabled enables or disables metrics
	Enabled bool `yaml:"enabled"`

	// ExportInterval is the time between exports. Default: 30s
	ExportInterval time.Duration `yaml:"interval"`

	// ExportTimeout is the timeout for each export. Default: 10s
	ExportTimeout time.Duration `yaml:"timeout"`

	// Stdout prints every export to stdout, mostly for local debugging
	Stdout bool `yaml:"stdout"`

	// OTLPEndpoint is an optional OTLP/HTTP endpoint URL,
	// e.g. http://localhost:4318/v1/metrics
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ExportInterval: 30 * time.Second,
		ExportTimeout:  10 * time.Second,
	}
}
