package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/guillermoBallester/nlquery"

// Identity describes this process on every exported span and metric.
type Identity struct {
	ServiceName string
	Version     string
	// DBDriver is the configured store driver ("sqlite" or "postgres").
	DBDriver string
	// Transport is the MCP transport ("stdio" or "http").
	Transport string
}

func (id Identity) attributes() []attribute.KeyValue {
	name := id.ServiceName
	if name == "" {
		name = "nlquery"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(name),
		semconv.ServiceVersion(id.Version),
		attribute.String("service.instance.id", uuid.NewString()),
	}
	switch id.DBDriver {
	case "":
	case "postgres":
		attrs = append(attrs, attribute.String("db.system", "postgresql"))
	default:
		attrs = append(attrs, attribute.String("db.system", id.DBDriver))
	}
	if id.Transport != "" {
		attrs = append(attrs, attribute.String("nlquery.transport", id.Transport))
	}
	return attrs
}

// Provider owns the trace and meter providers until Shutdown.
type Provider struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init exports over OTLP gRPC and installs the providers globally. Endpoint
// and headers come from the standard OTEL_EXPORTER_OTLP_* variables.
func Init(ctx context.Context, id Identity) (*Provider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(id.attributes()...))
	if err != nil {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}

	spans, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	metrics, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	p := newProvider(res, spans, sdkmetric.NewPeriodicReader(metrics))
	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)
	// W3C trace context only travels over the HTTP transport.
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return p, nil
}

func newProvider(res *resource.Resource, spans sdktrace.SpanExporter, reader sdkmetric.Reader) *Provider {
	return &Provider{
		tp: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spans),
			sdktrace.WithResource(res),
		),
		mp: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(reader),
			sdkmetric.WithResource(res),
		),
	}
}

// Shutdown flushes pending spans and metrics. Both providers are shut down
// even when the first one fails.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down tracer: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down meter: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Tracer returns the pipeline tracer from the global TracerProvider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// NoopTracer is used when telemetry is disabled.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("noop")
}
