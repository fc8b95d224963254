package config

// TracingConfig controls optional OTLP trace export. Tracing is disabled
// unless an endpoint is configured (or OTLP_ENDPOINT is set).
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint, e.g. "localhost:4318".
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`

	// ServiceName identifies this service in exported traces.
	ServiceName string `mapstructure:"service_name" json:"service_name"`

	// Environment tags traces with a deployment environment (dev, prod).
	Environment string `mapstructure:"environment" json:"environment"`
}

// Enabled reports whether trace export should be set up.
func (t TracingConfig) Enabled() bool {
	return t.Endpoint != ""
}
