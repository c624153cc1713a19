// Package api is the HTTP surface: ingestion, job status, query, retrieval
// and latency stats.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dgallion1/docrag/internal/llm"
	"github.com/dgallion1/docrag/internal/pipeline"
	"github.com/dgallion1/docrag/internal/query"
)

// Ingester runs a synchronous ingestion.
type Ingester interface {
	Ingest(ctx context.Context, doc pipeline.Document, track func(pipeline.JobStatus)) (pipeline.Result, error)
}

// Querier answers and retrieves.
type Querier interface {
	Answer(ctx context.Context, q string, topK int) (query.Result, error)
	Retrieve(ctx context.Context, q string, topK int, refine bool) (query.Retrieval, error)
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Ingestor Ingester
	Jobs     *pipeline.Orchestrator
	Query    Querier
	Stats    map[string]*llm.Stats
}

// Options configure the server.
type Options struct {
	APIKey         string
	MaxUploadBytes int64
}

// Server is the HTTP API server for docrag.
type Server struct {
	handler http.Handler
	deps    Deps
	log     *slog.Logger
	opts    Options
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	s := &Server{deps: deps, log: log, opts: opts}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.opts.APIKey, s.log))

		r.Post("/api/ingest", s.handleIngest)
		r.Post("/api/ingest/batch", s.handleBatchIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)
		r.Post("/api/query", s.handleQuery)
		r.Post("/api/retrieve", s.handleRetrieve)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.handler = otelhttp.NewHandler(r, "docrag.api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if s.deps.Jobs != nil {
		depth = s.deps.Jobs.QueueDepth()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "queue_depth": depth})
}
