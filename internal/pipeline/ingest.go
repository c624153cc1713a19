// Package pipeline runs document ingestion: extract, split, polish, embed
// and persist. Ingestor does one document synchronously; Orchestrator
// queues documents for background workers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docrag/internal/chunk"
	"github.com/dgallion1/docrag/internal/chunker"
	"github.com/dgallion1/docrag/internal/parser"
	"github.com/dgallion1/docrag/internal/polisher"
	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/dgallion1/docrag/internal/store"
)

// Extractor turns raw document bytes into text.
type Extractor interface {
	Extract(contentType string, data []byte, fileName string) (string, error)
}

// Embedder returns one vector per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Stores is the persistence an Ingestor writes to.
type Stores interface {
	store.ParentStore
	store.ChildStore
}

// Document is an uploaded file awaiting ingestion.
type Document struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Result summarizes a completed ingestion.
type Result struct {
	FileName   string        `json:"file_name"`
	Parents    int           `json:"parents"`
	Children   int           `json:"children"`
	Dimensions int           `json:"dimensions"`
	Duration   time.Duration `json:"duration_ns"`
}

// Ingestor runs the ingestion steps for one document at a time. It is safe
// for concurrent use when its collaborators are.
type Ingestor struct {
	extractor Extractor
	embedder  Embedder
	stores    Stores
	split     chunker.Config
	log       *slog.Logger
}

func NewIngestor(ex Extractor, emb Embedder, st Stores, split chunker.Config, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Ingestor{extractor: ex, embedder: emb, stores: st, split: split, log: log}
}

// Ingest extracts, splits, polishes, embeds and persists doc. track, if not
// nil, is called as each step completes and once with the terminal status.
//
// Nothing is persisted unless every child was embedded. Parents are written
// before children; a child write failure leaves orphaned parents behind.
// Cancellation before persistence aborts cleanly. Cancellation once
// persistence began returns an error matching ragerr.ErrIncomplete.
func (in *Ingestor) Ingest(ctx context.Context, doc Document, track func(JobStatus)) (res Result, err error) {
	if track == nil {
		track = func(JobStatus) {}
	}
	start := time.Now()
	log := in.log.With("file_name", doc.FileName)
	persisting := false
	defer func() {
		switch {
		case err == nil:
			track(StatusPersisted)
		case persisting && errors.Is(err, ragerr.ErrIncomplete):
			log.Warn("ingestion interrupted during persistence", "error", err)
			track(StatusIncomplete)
		default:
			log.Error("ingestion failed", "error", err)
			track(StatusFailed)
		}
	}()

	if doc.FileName == "" {
		return Result{}, ragerr.Validation("ingest", errors.New("file name is required"))
	}

	text, err := in.extractor.Extract(doc.ContentType, doc.Data, doc.FileName)
	if err != nil {
		if ragerr.KindOf(err) == "" {
			err = ragerr.Extraction("extract", doc.FileName, err)
		}
		return Result{}, err
	}
	track(StatusExtracted)

	parents, children := chunker.Split(text, doc.FileName, in.split)
	if len(children) == 0 {
		return Result{}, ragerr.Extraction("split", doc.FileName, parser.ErrNoText)
	}
	track(StatusSplit)
	log.Debug("split document", "parents", len(parents), "children", len(children))

	children = polisher.Polish(children)
	track(StatusPolished)

	vectors, err := in.embed(ctx, children)
	if err != nil {
		return Result{}, err
	}
	for i := range children {
		children[i].Embedding = vectors[i]
	}
	track(StatusEmbedded)

	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("ingest %s: aborted before persistence: %w", doc.FileName, err)
	}

	persisting = true
	if err := in.stores.UpsertParents(ctx, parents); err != nil {
		return Result{}, in.persistError(ctx, "upsert parents", err)
	}
	if err := in.stores.UpsertChildren(ctx, children); err != nil {
		return Result{}, in.persistError(ctx, "upsert children", err)
	}

	res = Result{
		FileName:   doc.FileName,
		Parents:    len(parents),
		Children:   len(children),
		Dimensions: len(vectors[0]),
		Duration:   time.Since(start),
	}
	log.Info("document ingested", "parents", res.Parents, "children", res.Children,
		"dimensions", res.Dimensions, "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

func (in *Ingestor) embed(ctx context.Context, children []chunk.Child) ([][]float32, error) {
	texts := make([]string, len(children))
	for i, c := range children {
		texts[i] = c.Text
	}
	vectors, err := in.embedder.Embed(ctx, texts)
	if err != nil {
		if ragerr.KindOf(err) == "" {
			err = ragerr.Embedding("embed children", err)
		}
		return nil, err
	}
	if len(vectors) != len(children) {
		return nil, ragerr.Embedding("embed children",
			fmt.Errorf("got %d vectors for %d children", len(vectors), len(children)))
	}
	return vectors, nil
}

// persistError classifies a store failure. Once writes have started, an
// interrupted context means some records may already be stored.
func (in *Ingestor) persistError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ragerr.ErrIncomplete, err)
	}
	if ragerr.IsKind(err, ragerr.KindPersistence) {
		return err
	}
	return ragerr.Persistence(op, err)
}
