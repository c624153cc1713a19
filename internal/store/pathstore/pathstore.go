// Package pathstore keeps parents in a pathstore key-value service, one
// node per parent under a fixed key prefix.
package pathstore

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docrag/internal/chunk"
	"github.com/dgallion1/docrag/internal/store"
)

var _ store.ParentStore = (*ParentStore)(nil)

const (
	defaultPrefix      = "docrag/parents"
	defaultConcurrency = 8
)

type parentValue struct {
	Content      string `json:"content"`
	DocumentName string `json:"document_name"`
}

// ParentStore implements store.ParentStore on a pathstore Client.
type ParentStore struct {
	client      *Client
	prefix      string
	concurrency int
}

// Option configures a ParentStore.
type Option func(*ParentStore)

// WithPrefix sets the key prefix parents are stored under.
func WithPrefix(prefix string) Option {
	return func(s *ParentStore) { s.prefix = prefix }
}

// WithConcurrency bounds in-flight requests per call.
func WithConcurrency(n int) Option {
	return func(s *ParentStore) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func NewParentStore(client *Client, opts ...Option) *ParentStore {
	s := &ParentStore{client: client, prefix: defaultPrefix, concurrency: defaultConcurrency}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *ParentStore) key(id string) string {
	return s.prefix + "/" + id
}

// UpsertParents writes every parent; the first failure cancels the rest.
func (s *ParentStore) UpsertParents(ctx context.Context, parents []chunk.Parent) error {
	if err := store.ValidateParents(parents); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range parents {
		g.Go(func() error {
			return s.client.PutNode(ctx, s.key(p.ID), parentValue{Content: p.Content, DocumentName: p.DocumentName})
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pathstore: upsert parents: %w", err)
	}
	return nil
}

// GetParents fetches ids concurrently and returns the found ones in the
// order requested.
func (s *ParentStore) GetParents(ctx context.Context, ids []string) ([]chunk.Parent, error) {
	found := make([]*chunk.Parent, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			var v parentValue
			ok, err := s.client.GetNode(ctx, s.key(id), &v)
			if err != nil || !ok {
				return err
			}
			found[i] = &chunk.Parent{ID: id, Content: v.Content, DocumentName: v.DocumentName}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pathstore: get parents: %w", err)
	}

	var out []chunk.Parent
	for _, p := range found {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *ParentStore) Close() error {
	s.client.Close()
	return nil
}
