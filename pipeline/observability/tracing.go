// Package observability provides OpenTelemetry tracing for the decision
// pipeline.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// TracerOptions describe the service identity and sampling policy reported
// to the collector.
type TracerOptions struct {
	ServiceName string
	// Version is the build version, injected at link time.
	Version string
	// Environment is the translator environment (simulated, centralized,
	// decentralized) so traces from paper runs are distinguishable from
	// live ones.
	Environment string
	// SampleRatio in (0,1] selects ratio-based sampling; values outside
	// that range sample everything.
	SampleRatio float64
}

// InitTracer initializes OpenTelemetry tracing with an OTLP exporter.
// Returns a shutdown function that must be called on service termination.
func InitTracer(collectorEndpoint string, opts TracerOptions) (func(context.Context) error, error) {
	ctx := context.Background()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(collectorEndpoint),
		otlptracegrpc.WithInsecure(), // Use TLS in production
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.Version),
			semconv.DeploymentEnvironment(opts.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(samplerFor(opts.SampleRatio)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func samplerFor(ratio float64) trace.Sampler {
	if ratio > 0 && ratio < 1 {
		return trace.ParentBased(trace.TraceIDRatioBased(ratio))
	}
	return trace.AlwaysSample()
}
