package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ProviderConfig configures the OpenTelemetry SDK wiring for one process.
type ProviderConfig struct {
	ServiceName string
	// Endpoint is an OTLP/gRPC collector address, e.g. "localhost:4317".
	// Empty means "no collector configured" and traces are written to
	// stdout instead, which is useful for local development and tests.
	Endpoint       string
	Insecure       bool
	SamplingRatio  float64
}

// Provider owns the SDK TracerProvider and exposes a Telemetry facade plus a
// Shutdown hook releasing exporter resources.
type Provider struct {
	tp *sdktrace.TracerProvider
	*OTel
}

// NewProvider builds an OTel SDK pipeline per cfg and wraps it in the
// Telemetry facade. When cfg.Endpoint is empty, spans are exported to
// stdout (pretty-printed JSON) rather than dropped, so local runs still
// produce inspectable traces.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("telemetry: ServiceName is required")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	if cfg.Endpoint == "" {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
	} else {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		client := otlptracegrpc.NewClient(opts...)
		exporter, err = otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp/grpc exporter at %s: %w", cfg.Endpoint, err)
		}
	}

	ratio := cfg.SamplingRatio
	if ratio <= 0 {
		ratio = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(2*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{tp: tp, OTel: NewOTel(cfg.ServiceName)}, nil
}

// Shutdown flushes and releases the exporter. Must be called once the
// process is done producing spans (engine run completion, server shutdown).
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}
