// Package otel exports mcpchat telemetry through OpenTelemetry.
package otel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const instrumentationName = "github.com/petal-labs/mcpchat"

// SetupConfig configures telemetry export.
type SetupConfig struct {
	// Endpoint is the OTLP/HTTP base URL, e.g. http://localhost:4318.
	// Empty disables span export.
	Endpoint    string
	ServiceName string
}

// Setup builds an Observer and, when an endpoint is configured, a tracer
// provider exporting spans over OTLP/HTTP. Metrics go to the global meter
// provider. The returned shutdown func flushes pending spans.
func Setup(ctx context.Context, cfg SetupConfig) (*Observer, func(context.Context) error, error) {
	noShutdown := func(context.Context) error { return nil }
	meter := otel.Meter(instrumentationName)

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		observer, err := NewObserver(meter, nil)
		if err != nil {
			return nil, noShutdown, fmt.Errorf("otel: create observer: %w", err)
		}
		return observer, noShutdown, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(strings.TrimRight(endpoint, "/")+"/v1/traces"))
	if err != nil {
		return nil, noShutdown, fmt.Errorf("otel: create otlp exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "mcpchat"
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)

	observer, err := NewObserver(meter, provider.Tracer(instrumentationName))
	if err != nil {
		return nil, noShutdown, errors.Join(
			fmt.Errorf("otel: create observer: %w", err),
			provider.Shutdown(ctx),
		)
	}
	return observer, provider.Shutdown, nil
}
