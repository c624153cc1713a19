// Package query answers questions from the parent/child index: refine,
// embed, search children, resolve parents, then generate.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/docrag/internal/chunk"
	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/dgallion1/docrag/internal/store"
)

// NoResultsMessage is the answer when nothing relevant was retrieved.
const NoResultsMessage = "No relevant documents found..."

const (
	DefaultTopK = 5
	MaxTopK     = 50
)

type Refiner interface {
	Refine(ctx context.Context, query string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Generator interface {
	Generate(ctx context.Context, ragContext, query string) (string, error)
}

// Stores is the read side of the index.
type Stores interface {
	store.ParentStore
	store.ChildStore
}

// Recorder receives the outcome of each answered query.
type Recorder interface {
	RecordQuery(ctx context.Context, found bool, elapsed time.Duration)
}

type Options struct {
	DefaultTopK int
	// RefineFallback searches with the raw query when refinement fails
	// instead of failing the request.
	RefineFallback bool
	Recorder       Recorder
}

// Service runs queries. It holds no per-request state and is safe for
// concurrent use when its collaborators are.
type Service struct {
	refiner   Refiner
	embedder  Embedder
	stores    Stores
	generator Generator
	opts      Options
	log       *slog.Logger
}

func NewService(ref Refiner, emb Embedder, st Stores, gen Generator, opts Options, log *slog.Logger) *Service {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = DefaultTopK
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{refiner: ref, embedder: emb, stores: st, generator: gen, opts: opts, log: log}
}

// Source is a parent that grounded an answer.
type Source struct {
	ParentID     string  `json:"parent_id"`
	DocumentName string  `json:"document_name"`
	Score        float32 `json:"score"`
}

// Result is an answered query. Found is false when retrieval produced
// nothing; Answer is then NoResultsMessage.
type Result struct {
	Query        string   `json:"query"`
	RefinedQuery string   `json:"refined_query"`
	Refined      bool     `json:"refined"`
	Found        bool     `json:"found"`
	Answer       string   `json:"answer"`
	Sources      []Source `json:"sources"`
}

// Hit is a ranked child with its resolved parent, if any.
type Hit struct {
	FileName string        `json:"file_name"`
	Index    int           `json:"index"`
	Text     string        `json:"text"`
	Score    float32       `json:"score"`
	ParentID string        `json:"parent_id"`
	Parent   *chunk.Parent `json:"parent,omitempty"`
}

// Retrieval is the ranked search outcome without generation.
type Retrieval struct {
	Query        string         `json:"query"`
	RefinedQuery string         `json:"refined_query"`
	Refined      bool           `json:"refined"`
	Hits         []Hit          `json:"hits"`
	Parents      []chunk.Parent `json:"parents"`
}

// Answer refines q, retrieves grounding parents and asks the generator.
// With no hits the generator is not called.
func (s *Service) Answer(ctx context.Context, q string, topK int) (res Result, err error) {
	start := time.Now()
	defer func() {
		if err == nil && s.opts.Recorder != nil {
			s.opts.Recorder.RecordQuery(ctx, res.Found, time.Since(start))
		}
	}()

	q = strings.TrimSpace(q)
	if q == "" {
		return Result{}, ragerr.Validation("query", errors.New("query is empty"))
	}
	refined, ok, err := s.refine(ctx, q)
	if err != nil {
		return Result{}, err
	}
	res = Result{Query: q, RefinedQuery: refined, Refined: ok, Sources: []Source{}}

	hits, parents, err := s.retrieve(ctx, refined, s.topK(topK))
	if err != nil {
		return Result{}, err
	}
	if len(hits) == 0 || len(parents) == 0 {
		s.log.Info("query found no documents", "hits", len(hits))
		res.Answer = NoResultsMessage
		return res, nil
	}

	best := make(map[string]float32, len(parents))
	for _, h := range hits {
		if _, seen := best[h.ParentID]; !seen {
			best[h.ParentID] = h.Score
		}
	}
	contents := make([]string, len(parents))
	for i, p := range parents {
		contents[i] = p.Content
		res.Sources = append(res.Sources, Source{ParentID: p.ID, DocumentName: p.DocumentName, Score: best[p.ID]})
	}

	answer, err := s.generator.Generate(ctx, strings.Join(contents, "\n\n"), q)
	if err != nil {
		if ragerr.KindOf(err) == "" {
			err = ragerr.Generation("generate answer", err)
		}
		return Result{}, err
	}
	res.Found = true
	res.Answer = answer
	s.log.Info("query answered", "hits", len(hits), "parents", len(parents),
		"refined", res.Refined, "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// Retrieve returns ranked children and their parents without generating an
// answer. refine selects whether the query is refined first.
func (s *Service) Retrieve(ctx context.Context, q string, topK int, refine bool) (Retrieval, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return Retrieval{}, ragerr.Validation("retrieve", errors.New("query is empty"))
	}
	searchText := q
	refined := false
	if refine {
		var err error
		if searchText, refined, err = s.refine(ctx, q); err != nil {
			return Retrieval{}, err
		}
	}

	hits, parents, err := s.retrieve(ctx, searchText, s.topK(topK))
	if err != nil {
		return Retrieval{}, err
	}
	byID := make(map[string]*chunk.Parent, len(parents))
	for i := range parents {
		byID[parents[i].ID] = &parents[i]
	}
	out := Retrieval{Query: q, RefinedQuery: searchText, Refined: refined, Hits: make([]Hit, len(hits)), Parents: parents}
	for i, h := range hits {
		out.Hits[i] = Hit{
			FileName: h.FileName,
			Index:    h.Index,
			Text:     h.Text,
			Score:    h.Score,
			ParentID: h.ParentID,
			Parent:   byID[h.ParentID],
		}
	}
	if out.Parents == nil {
		out.Parents = []chunk.Parent{}
	}
	return out, nil
}

func (s *Service) topK(k int) int {
	if k <= 0 {
		return s.opts.DefaultTopK
	}
	return min(k, MaxTopK)
}

// refine returns the text to search with and whether it was refined.
func (s *Service) refine(ctx context.Context, q string) (string, bool, error) {
	refined, err := s.refiner.Refine(ctx, q)
	if err == nil {
		return refined, true, nil
	}
	if ragerr.KindOf(err) == "" {
		err = ragerr.Refinement("refine query", q, err)
	}
	if s.opts.RefineFallback && ctx.Err() == nil {
		s.log.Warn("refinement failed, searching with raw query", "error", err)
		return q, false, nil
	}
	return "", false, err
}

// retrieve embeds text, searches children and fetches their parents in
// order of first appearance among the ranked hits.
func (s *Service) retrieve(ctx context.Context, text string, topK int) ([]chunk.ScoredChild, []chunk.Parent, error) {
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		if ragerr.KindOf(err) == "" {
			err = ragerr.Embedding("embed query", err)
		}
		return nil, nil, err
	}
	if len(vectors) != 1 {
		return nil, nil, ragerr.Embedding("embed query", fmt.Errorf("got %d vectors for 1 query", len(vectors)))
	}

	hits, err := s.stores.SearchChildren(ctx, vectors[0], topK)
	if err != nil {
		return nil, nil, asPersistence("search children", err)
	}
	if len(hits) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if !seen[h.ParentID] {
			seen[h.ParentID] = true
			ids = append(ids, h.ParentID)
		}
	}
	found, err := s.stores.GetParents(ctx, ids)
	if err != nil {
		return nil, nil, asPersistence("get parents", err)
	}

	// Stores may return parents in any order; restore rank order.
	byID := make(map[string]chunk.Parent, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	parents := make([]chunk.Parent, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			parents = append(parents, p)
		}
	}
	if missing := len(ids) - len(parents); missing > 0 {
		s.log.Warn("search hits reference missing parents", "missing", missing)
	}
	return hits, parents, nil
}

func asPersistence(op string, err error) error {
	if ragerr.KindOf(err) != "" {
		return err
	}
	return ragerr.Persistence(op, err)
}
