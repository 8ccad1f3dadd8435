// Package tracing installs the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName is reported as service.name on every span.
const ServiceName = "emsal"

const defaultTracesPath = "/v1/traces"

// Options configures trace export.
type Options struct {
	// Endpoint is the OTLP/HTTP collector URL, e.g. http://otel-collector:4318.
	// Empty leaves the global no-op provider in place.
	Endpoint       string
	Insecure       bool
	SampleRatio    float64
	ServiceVersion string
}

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(context.Context) error

// Setup installs a global tracer provider exporting over OTLP/HTTP.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	if opts.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse tracing endpoint: %w", err)
	}
	exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(opts.Endpoint)}
	if u.Path == "" || u.Path == "/" {
		exporterOpts = append(exporterOpts, otlptracehttp.WithURLPath(defaultTracesPath))
	}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	ratio := opts.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(sdkresource.NewSchemaless(
			attribute.String("service.name", ServiceName),
			attribute.String("service.version", opts.ServiceVersion),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
