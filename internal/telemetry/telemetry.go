// Package telemetry implements core.Telemetry with OpenTelemetry: a tracer
// and meter provider exporting over OTLP/gRPC, with a stdout fallback for
// local runs without a collector.
//
// Grounded on telemetry/otel.go's OTelProvider: same shutdown-once guard,
// same metric-name heuristic (duration/latency -> histogram, count/total ->
// counter), adapted from HTTP exporters to the gRPC exporters already wired
// for tracing elsewhere in this module.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/aipolab/aipo/internal/core"
)

// Provider implements core.Telemetry backed by the OpenTelemetry SDK.
type Provider struct {
	tracer         trace.Tracer
	meter          metric.Meter
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider

	instrumentsMu sync.Mutex
	histograms    map[string]metric.Float64Histogram
	counters      map[string]metric.Float64Counter

	shutdownOnce sync.Once
}

// New builds a Provider for serviceName. If endpoint is empty, traces are
// written to stdout instead of shipped over OTLP — useful for `aipo run`
// invocations with no collector configured. In that mode metrics are
// recorded but not exported anywhere.
func New(serviceName, endpoint string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name cannot be empty")
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String("0.1.0"),
	)

	tp, mp, err := buildProviders(res, endpoint)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{
		tracer:         tp.Tracer("aipo"),
		meter:          mp.Meter("aipo"),
		traceProvider:  tp,
		metricProvider: mp,
		histograms:     map[string]metric.Float64Histogram{},
		counters:       map[string]metric.Float64Counter{},
	}, nil
}

func buildProviders(res *resource.Resource, endpoint string) (*sdktrace.TracerProvider, *sdkmetric.MeterProvider, error) {
	if endpoint == "" {
		traceExporter, err := stdouttrace.New()
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter), sdktrace.WithResource(res))
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		return tp, mp, nil
	}

	ctx := context.Background()

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: otlp trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: otlp metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter), sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	return tp, mp, nil
}

// StartSpan implements core.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry, routing by name heuristic into a
// histogram (duration/latency/ms) or a counter (count/total/errors) since
// the interface doesn't carry an explicit metric kind.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	ctx := context.Background()
	if isCounterMetric(name) {
		p.counter(name).Add(ctx, value, metric.WithAttributes(attrs...))
		return
	}
	p.histogram(name).Record(ctx, value, metric.WithAttributes(attrs...))
}

func isCounterMetric(name string) bool {
	for _, suffix := range []string{"count", "total", "errors", "successes"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func (p *Provider) histogram(name string) metric.Float64Histogram {
	p.instrumentsMu.Lock()
	defer p.instrumentsMu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return h
	}
	h, _ := p.meter.Float64Histogram(name)
	p.histograms[name] = h
	return h
}

func (p *Provider) counter(name string) metric.Float64Counter {
	p.instrumentsMu.Lock()
	defer p.instrumentsMu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c, _ := p.meter.Float64Counter(name)
	p.counters[name] = c
	return c
}

// Shutdown flushes and stops both providers. Idempotent.
func (p *Provider) Shutdown(ctx context.Context) error {
	var shutdownErr error
	p.shutdownOnce.Do(func() {
		var errs []error
		if err := p.metricProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric provider: %w", err))
		}
		if err := p.traceProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider: %w", err))
		}
		if len(errs) > 0 {
			shutdownErr = fmt.Errorf("telemetry shutdown errors: %v", errs)
		}
	})
	return shutdownErr
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
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}

var _ core.Telemetry = (*Provider)(nil)
