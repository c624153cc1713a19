package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// RecordIngest counts a finished ingestion job by terminal status.
func (i *Instruments) RecordIngest(ctx context.Context, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(AttrStatus.String(status))
	i.IngestJobs.Add(ctx, 1, attrs)
	i.IngestDuration.Record(ctx, millis(elapsed), attrs)
}

// RecordQuery counts an answered query.
func (i *Instruments) RecordQuery(ctx context.Context, found bool, elapsed time.Duration) {
	attrs := metric.WithAttributes(AttrQueryFound.Bool(found))
	i.Queries.Add(ctx, 1, attrs)
	i.QueryDuration.Record(ctx, millis(elapsed), attrs)
}

// Embedder is the embedding call being observed.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ObservedEmbedder traces and meters an Embedder.
type ObservedEmbedder struct {
	inner Embedder
	inst  *Instruments
}

func WrapEmbedder(inner Embedder, inst *Instruments) *ObservedEmbedder {
	return &ObservedEmbedder{inner: inner, inst: inst}
}

func (o *ObservedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "embedding.embed",
		trace.WithAttributes(AttrEmbedTextCount.Int(len(texts))))
	start := time.Now()

	vectors, err := o.inner.Embed(ctx, texts)

	if len(vectors) > 0 {
		span.SetAttributes(AttrEmbedDims.Int(len(vectors[0])))
	}
	endSpan(span, err)
	o.inst.EmbedRequests.Add(ctx, 1, metric.WithAttributes(AttrStatus.String(statusOf(err))))
	o.inst.EmbedDuration.Record(ctx, millis(time.Since(start)))
	return vectors, err
}

// Refiner and Generator are the LLM calls being observed.
type Refiner interface {
	Refine(ctx context.Context, query string) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, ragContext, query string) (string, error)
}

// ObservedRefiner traces and meters a Refiner.
type ObservedRefiner struct {
	inner Refiner
	inst  *Instruments
}

func WrapRefiner(inner Refiner, inst *Instruments) *ObservedRefiner {
	return &ObservedRefiner{inner: inner, inst: inst}
}

func (o *ObservedRefiner) Refine(ctx context.Context, query string) (string, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.refine")
	start := time.Now()
	out, err := o.inner.Refine(ctx, query)
	endSpan(span, err)
	o.inst.recordLLM(ctx, "refine", err, time.Since(start))
	return out, err
}

// ObservedGenerator traces and meters a Generator.
type ObservedGenerator struct {
	inner Generator
	inst  *Instruments
}

func WrapGenerator(inner Generator, inst *Instruments) *ObservedGenerator {
	return &ObservedGenerator{inner: inner, inst: inst}
}

func (o *ObservedGenerator) Generate(ctx context.Context, ragContext, query string) (string, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.generate",
		trace.WithAttributes(attribute.Int("docrag.context.length", len(ragContext))))
	start := time.Now()
	out, err := o.inner.Generate(ctx, ragContext, query)
	endSpan(span, err)
	o.inst.recordLLM(ctx, "generate", err, time.Since(start))
	return out, err
}

func (i *Instruments) recordLLM(ctx context.Context, op string, err error, elapsed time.Duration) {
	i.LLMRequests.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op), AttrStatus.String(statusOf(err))))
	i.LLMDuration.Record(ctx, millis(elapsed), metric.WithAttributes(AttrOperation.String(op)))
}
