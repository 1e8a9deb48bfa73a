package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/nlquery"

// Instruments holds pre-created OTel metric instruments for the query pipeline.
type Instruments struct {
	QueryCount         metric.Int64Counter
	QueryDuration      metric.Float64Histogram
	QueryErrors        metric.Int64Counter
	Rejections         metric.Int64Counter
	GenerationDuration metric.Float64Histogram
	ToolDuration       metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	return newInstrumentsFromMeter(otel.Meter(meterName))
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return newInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	queryCount, _ := meter.Int64Counter("nlquery.query.count",
		metric.WithDescription("Total number of SQL statements executed successfully"),
	)
	queryDuration, _ := meter.Float64Histogram("nlquery.query.duration",
		metric.WithDescription("SQL execution duration in milliseconds, including row draining"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("nlquery.query.errors",
		metric.WithDescription("Failed executions by error kind"),
	)
	rejections, _ := meter.Int64Counter("nlquery.gate.rejections",
		metric.WithDescription("Statements rejected by the safety gate, by stage"),
	)
	generationDuration, _ := meter.Float64Histogram("nlquery.generation.duration",
		metric.WithDescription("SQL generation call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	toolDuration, _ := meter.Float64Histogram("nlquery.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		QueryCount:         queryCount,
		QueryDuration:      queryDuration,
		QueryErrors:        queryErrors,
		Rejections:         rejections,
		GenerationDuration: generationDuration,
		ToolDuration:       toolDuration,
	}
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementQueryCount(ctx context.Context) {
	i.QueryCount.Add(ctx, 1)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context, kind string) {
	i.QueryErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("error.type", kind)))
}

func (i *Instruments) IncrementRejections(ctx context.Context, stage string) {
	i.Rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("gate.stage", stage)))
}

func (i *Instruments) RecordGenerationDuration(ctx context.Context, ms float64) {
	i.GenerationDuration.Record(ctx, ms)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
