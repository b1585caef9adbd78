// Package telemetry provides a thin facade over OpenTelemetry so the rest of
// the module never imports go.opentelemetry.io/* directly.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry is the tracing/metrics surface consumed by engine, executor, and
// llm. RecordMetric labels are a flat string map, matching the convention
// used across the rest of the integration-dispatch substrate.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span wraps a trace.Span with the attribute/error surface the engine needs.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	AddEvent(name string, attrs map[string]interface{})
	RecordError(err error)
}

// NoOp is the default Telemetry used when tracing isn't configured.
type NoOp struct{}

func (NoOp) StartSpan(ctx context.Context, _ string) (context.Context, Span) { return ctx, noopSpan{} }
func (NoOp) RecordMetric(string, float64, map[string]string)                 {}

type noopSpan struct{}

func (noopSpan) End()                                       {}
func (noopSpan) SetAttribute(string, interface{})           {}
func (noopSpan) AddEvent(string, map[string]interface{})    {}
func (noopSpan) RecordError(error)                          {}

// OTel implements Telemetry over a configured OpenTelemetry tracer/meter
// pair. Construction of the SDK providers (exporters, resource, sampler) is
// the caller's responsibility — this type only wraps the resulting
// trace.Tracer/metric.Meter.
type OTel struct {
	tracer trace.Tracer
	meter  metric.Meter

	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOTel wraps tracer/meter obtained from an already-configured SDK
// (otel.Tracer(name), otel.Meter(name)) into the Telemetry facade.
func NewOTel(serviceName string) *OTel {
	return &OTel{
		tracer:     otel.Tracer(serviceName),
		meter:      otel.Meter(serviceName),
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (o *OTel) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := o.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

func (o *OTel) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	counter, ok := o.counters[name]
	if !ok {
		c, err := o.meter.Float64Counter(name)
		if err != nil {
			return
		}
		o.counters[name] = c
		counter = c
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, "<unsupported>"))
	}
}

func (s *otelSpan) AddEvent(name string, attrs map[string]interface{}) {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		if sv, ok := v.(string); ok {
			kvs = append(kvs, attribute.String(k, sv))
		}
	}
	s.span.AddEvent(name, trace.WithAttributes(kvs...))
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}
