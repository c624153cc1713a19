// Package app builds the shared service graph used by the HTTP server and
// the CLI: clients, stores, the ingestor and the query service.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgallion1/docrag/internal/chunker"
	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/embedding"
	"github.com/dgallion1/docrag/internal/llm"
	"github.com/dgallion1/docrag/internal/parser"
	"github.com/dgallion1/docrag/internal/pipeline"
	"github.com/dgallion1/docrag/internal/query"
	"github.com/dgallion1/docrag/internal/store"
	"github.com/dgallion1/docrag/internal/store/backend"
	"github.com/dgallion1/docrag/internal/telemetry"
)

// statsWindow is how long latency samples are kept for /api/stats/llm.
const statsWindow = time.Hour

// App owns every long-lived collaborator. Build it once and share it.
type App struct {
	Config    config.Config
	Store     store.Store
	Ingestor  *pipeline.Ingestor
	Query     *query.Service
	Telemetry *telemetry.Instruments

	// Stats holds call latency windows keyed by "embed", "refine" and "generate".
	Stats map[string]*llm.Stats

	embedder  *embedding.Client
	refiner   *llm.Refiner
	generator *llm.Generator
	log       *slog.Logger
}

// New opens the configured stores and builds clients. inst may be nil, in
// which case the global (no-op unless initialized) providers are used.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, inst *telemetry.Instruments) (*App, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if inst == nil {
		inst = telemetry.Noop()
	}

	st, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	stats := map[string]*llm.Stats{
		"embed":    llm.NewStats(statsWindow),
		"refine":   llm.NewStats(statsWindow),
		"generate": llm.NewStats(statsWindow),
	}
	emb := embedding.NewClient(embedding.Config{
		URL:               cfg.EmbedURL,
		APIKey:            cfg.EmbedAPIKey,
		MaxBatch:          cfg.EmbedMaxBatch,
		RequestsPerSecond: cfg.EmbedRateLimit,
		Timeout:           cfg.EmbedTimeout,
		Stats:             stats["embed"],
	})
	ref := llm.NewRefiner(llm.Config{URL: cfg.RefineURL, APIKey: cfg.RefineAPIKey, Timeout: cfg.LLMTimeout, Stats: stats["refine"]})
	gen := llm.NewGenerator(llm.Config{URL: cfg.AnswerURL, APIKey: cfg.AnswerAPIKey, Timeout: cfg.LLMTimeout, Stats: stats["generate"]})

	observed := telemetry.WrapEmbedder(emb, inst)
	split := chunker.Config{
		ParentMaxChars:       cfg.ParentMaxChars,
		ChildMaxChars:        cfg.ChildMaxChars,
		ChildOverlapFraction: cfg.ChildOverlapFraction,
	}
	extractor := parser.Extractor{PDFFallback: cfg.PDFFallbackPdftotext}

	a := &App{
		Config:    cfg,
		Store:     st,
		Telemetry: inst,
		Stats:     stats,
		Ingestor:  pipeline.NewIngestor(extractor, observed, st, split, log.With("component", "ingest")),
		Query: query.NewService(
			telemetry.WrapRefiner(ref, inst),
			observed,
			st,
			telemetry.WrapGenerator(gen, inst),
			query.Options{DefaultTopK: cfg.DefaultTopK, RefineFallback: cfg.QueryRefineFallback, Recorder: inst},
			log.With("component", "query"),
		),
		embedder:  emb,
		refiner:   ref,
		generator: gen,
		log:       log,
	}
	return a, nil
}

// NewOrchestrator builds the background ingestion queue. The caller starts
// and stops it.
func (a *App) NewOrchestrator() *pipeline.Orchestrator {
	o := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Workers:   a.Config.WorkerCount,
		QueueSize: a.Config.MaxQueueSize,
		Retries:   a.Config.IngestRetries,
		JobTTL:    a.Config.JobTTL,
	}, a.Ingestor, a.log.With("component", "orchestrator"))
	o.SetRecorder(a.Telemetry)
	return o
}

// Close releases clients and stores.
func (a *App) Close() error {
	a.embedder.Close()
	a.refiner.Close()
	a.generator.Close()
	return a.Store.Close()
}
