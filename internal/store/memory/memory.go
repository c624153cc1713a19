// Package memory is an in-process Store for tests and single-run tooling.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dgallion1/docrag/internal/chunk"
	"github.com/dgallion1/docrag/internal/store"
)

var _ store.Store = (*Store)(nil)

type storedChild struct {
	child chunk.Child
	seq   int64
}

// Store keeps everything in maps guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	parents  map[string]chunk.Parent
	children map[string]*storedChild
	nextSeq  int64
}

func New() *Store {
	return &Store{
		parents:  make(map[string]chunk.Parent),
		children: make(map[string]*storedChild),
	}
}

func (s *Store) UpsertParents(_ context.Context, parents []chunk.Parent) error {
	if err := store.ValidateParents(parents); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range parents {
		s.parents[p.ID] = p
	}
	return nil
}

func (s *Store) GetParents(_ context.Context, ids []string) ([]chunk.Parent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []chunk.Parent
	for _, id := range ids {
		if p, ok := s.parents[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// UpsertChildren overwrites children with the same key in place, keeping
// their original position for tie-breaking.
func (s *Store) UpsertChildren(_ context.Context, children []chunk.Child) error {
	if err := store.ValidateChildren(children); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range children {
		c.Embedding = slices.Clone(c.Embedding)
		if existing, ok := s.children[c.Key()]; ok {
			existing.child = c
			continue
		}
		s.nextSeq++
		s.children[c.Key()] = &storedChild{child: c, seq: s.nextSeq}
	}
	return nil
}

func (s *Store) SearchChildren(_ context.Context, vector []float32, topK int) ([]chunk.ScoredChild, error) {
	s.mu.RLock()
	hits := make([]store.Ranked, 0, len(s.children))
	for _, sc := range s.children {
		hits = append(hits, store.Ranked{
			ScoredChild: chunk.ScoredChild{Child: sc.child, Score: store.CosineSimilarity(vector, sc.child.Embedding)},
			Seq:         sc.seq,
		})
	}
	s.mu.RUnlock()

	out := store.TopK(hits, topK)
	for i := range out {
		out[i].Embedding = slices.Clone(out[i].Embedding)
	}
	return out, nil
}

// Len reports the number of parents and children held.
func (s *Store) Len() (parents, children int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parents), len(s.children)
}

func (s *Store) Close() error { return nil }
