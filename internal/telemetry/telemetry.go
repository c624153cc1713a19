// Package telemetry wires OpenTelemetry traces and metrics for ingestion,
// embedding, the LLM collaborators and queries.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/dgallion1/docrag"

// Attribute keys for spans and metrics.
var (
	AttrOperation      = attribute.Key("docrag.operation")
	AttrStatus         = attribute.Key("docrag.status")
	AttrEmbedTextCount = attribute.Key("docrag.embed.text_count")
	AttrEmbedDims      = attribute.Key("docrag.embed.dimensions")
	AttrQueryFound     = attribute.Key("docrag.query.found")
)

// Instruments holds the tracer and metric instruments.
type Instruments struct {
	Tracer trace.Tracer

	EmbedRequests  metric.Int64Counter
	EmbedDuration  metric.Float64Histogram
	LLMRequests    metric.Int64Counter
	LLMDuration    metric.Float64Histogram
	IngestJobs     metric.Int64Counter
	IngestDuration metric.Float64Histogram
	Queries        metric.Int64Counter
	QueryDuration  metric.Float64Histogram
}

// Init sets up trace and metric providers with OTLP HTTP exporters and
// installs them globally. Exporter settings come from the standard OTEL_*
// environment variables. The returned function flushes and shuts down both
// providers.
func Init(ctx context.Context, serviceName string) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := New(tp, mp)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return inst, shutdown, nil
}

// Noop returns instruments bound to the global providers, which discard
// everything unless Init ran.
func Noop() *Instruments {
	inst, err := New(otel.GetTracerProvider(), otel.GetMeterProvider())
	if err != nil {
		// The global no-op providers never fail to create instruments.
		panic(err)
	}
	return inst
}

// New creates instruments from explicit providers.
func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(scopeName)
	inst := &Instruments{Tracer: tp.Tracer(scopeName)}

	var err error
	counter := func(name, desc, unit string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		return c
	}
	histogram := func(name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
		return h
	}

	inst.EmbedRequests = counter("docrag.embedding.requests", "Embedding request count", "{request}")
	inst.EmbedDuration = histogram("docrag.embedding.duration", "Embedding call duration")
	inst.LLMRequests = counter("docrag.llm.requests", "Refinement and generation request count", "{request}")
	inst.LLMDuration = histogram("docrag.llm.duration", "Refinement and generation call duration")
	inst.IngestJobs = counter("docrag.ingest.jobs", "Finished ingestion jobs", "{job}")
	inst.IngestDuration = histogram("docrag.ingest.duration", "Ingestion job duration")
	inst.Queries = counter("docrag.query.requests", "Answered queries", "{query}")
	inst.QueryDuration = histogram("docrag.query.duration", "Query duration")
	if err != nil {
		return nil, err
	}
	return inst, nil
}
