// Package observability wires optional OTLP trace export into Genkit's
// tracer provider.
//
// Tracing is disabled unless an OTLP/HTTP collector endpoint is configured
// (tracing.endpoint in the config file, or the OTLP_ENDPOINT environment
// variable). Spans are exported over OTLP HTTP to a local collector or
// agent, which handles authentication, buffering, and forwarding.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/omnilearn/omnilearn/internal/config"
)

// Setup registers an OTLP exporter with Genkit's TracerProvider and returns
// a shutdown function that flushes pending spans.
//
// Must run before genkit.Init so the tracer provider is ready when Genkit
// starts creating spans. When the exporter cannot be created, tracing is
// disabled with a warning rather than failing startup.
func Setup(ctx context.Context, cfg config.TracingConfig, logger *slog.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled() {
		return noop
	}

	// Genkit's TracerProvider reads service identity from OTEL env vars.
	// SAFETY: os.Setenv is not concurrent-safe, but Setup runs exactly once
	// during startup before any goroutines are spawned.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("creating OTLP exporter failed, tracing disabled", "error", err)
		return noop
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("trace export enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown
}
