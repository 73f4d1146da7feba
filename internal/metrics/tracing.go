package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InitTracer builds and installs the process-wide TracerProvider, exporting
// spans over OTLP/HTTP. It fills the gap left by server/gateway.go's call
// to a gateway.InitTracer that is never defined anywhere in that repo —
// the teacher's own entrypoint does not compile as shipped. Not
// reproduced: this is a real implementation, grounded on otlptracehttp's
// standard exporter-plus-resource-plus-provider wiring (the same
// dependency trio already listed in go.mod).
func InitTracer(ctx context.Context, serviceName, version string, otlpEndpoint string) (shutdown func(context.Context) error, err error) {
	var opts []otlptracehttp.Option
	if otlpEndpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(otlpEndpoint))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("metrics: building otlp exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: building resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// Tracer returns the named tracer off the installed global provider.
// Nothing in the router calls it: the only spans it records are the
// per-request server spans of the otelhttp handler that NewRouter wraps
// around the routes when tracing is enabled.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
