// Package store defines the two-tier persistence used by ingestion and
// retrieval: a key-value tier for parents and a vector tier for children.
package store

import (
	"context"
	"errors"
	"math"
	"slices"

	"github.com/dgallion1/docrag/internal/chunk"
)

// ParentStore keeps parents by id. UpsertParents is idempotent and
// last-write-wins. GetParents omits ids it does not know and makes no
// promise about result length.
type ParentStore interface {
	UpsertParents(ctx context.Context, parents []chunk.Parent) error
	GetParents(ctx context.Context, ids []string) ([]chunk.Parent, error)
}

// ChildStore keeps embedded children keyed by (file name, index).
// SearchChildren returns at most topK hits ranked by cosine similarity,
// highest first, with ties in insertion order.
type ChildStore interface {
	UpsertChildren(ctx context.Context, children []chunk.Child) error
	SearchChildren(ctx context.Context, vector []float32, topK int) ([]chunk.ScoredChild, error)
}

// Store is both tiers plus resource cleanup.
type Store interface {
	ParentStore
	ChildStore
	Close() error
}

type closer interface{ Close() error }

type split struct {
	ParentStore
	ChildStore
}

// Split combines separate parent and child backends into one Store. Close
// closes each backend that has a Close method, once.
func Split(parents ParentStore, children ChildStore) Store {
	return split{ParentStore: parents, ChildStore: children}
}

func (s split) Close() error {
	var errs []error
	pc, _ := s.ParentStore.(closer)
	cc, _ := s.ChildStore.(closer)
	if pc != nil {
		errs = append(errs, pc.Close())
	}
	if cc != nil && cc != pc {
		errs = append(errs, cc.Close())
	}
	return errors.Join(errs...)
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Ranked is a scored child with its insertion sequence, for backends that
// rank in process.
type Ranked struct {
	chunk.ScoredChild
	Seq int64
}

// TopK sorts hits by score descending, then by insertion sequence, and
// keeps at most k.
func TopK(hits []Ranked, k int) []chunk.ScoredChild {
	slices.SortStableFunc(hits, func(a, b Ranked) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	if k < 0 {
		k = 0
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]chunk.ScoredChild, len(hits))
	for i, h := range hits {
		out[i] = h.ScoredChild
	}
	return out
}

// ValidateParents checks every parent before a write.
func ValidateParents(parents []chunk.Parent) error {
	for _, p := range parents {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateChildren checks every child, embedding included, before a write.
func ValidateChildren(children []chunk.Child) error {
	for _, c := range children {
		if err := c.ValidateEmbedded(); err != nil {
			return err
		}
	}
	return nil
}
