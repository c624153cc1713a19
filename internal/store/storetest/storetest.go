// Package storetest is a behavioral suite shared by every Store backend.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docrag/internal/chunk"
	"github.com/dgallion1/docrag/internal/store"
)

// Run exercises parents and children against a fresh store from open.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("ParentUpsertLastWriteWins", func(t *testing.T) { ParentUpsert(t, open(t)) })
	t.Run("GetParentsOmitsMissing", func(t *testing.T) { GetParentsOmitsMissing(t, open(t)) })
	t.Run("SearchRanksByCosine", func(t *testing.T) { ChildSearch(t, open(t)) })
	t.Run("SearchTiesKeepInsertionOrder", func(t *testing.T) { SearchTies(t, open(t)) })
	t.Run("ChildUpsertOverwritesByKey", func(t *testing.T) { ChildOverwrite(t, open(t)) })
	t.Run("RejectsChildWithoutEmbedding", func(t *testing.T) { RejectsUnembedded(t, open(t)) })
	t.Run("HitsDoNotAliasIndex", func(t *testing.T) { HitsDoNotAlias(t, open(t)) })
}

func child(p chunk.Parent, index int, text string, vec ...float32) chunk.Child {
	c := chunk.NewChild(index, text, p)
	c.Embedding = vec
	return c
}

func ParentUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := chunk.Parent{ID: "p-1", Content: "first", DocumentName: "a.txt"}
	require.NoError(t, s.UpsertParents(ctx, []chunk.Parent{p}))

	p.Content = "second"
	require.NoError(t, s.UpsertParents(ctx, []chunk.Parent{p}))

	got, err := s.GetParents(ctx, []string{"p-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Content)
	assert.Equal(t, "a.txt", got[0].DocumentName)
}

func GetParentsOmitsMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertParents(ctx, []chunk.Parent{
		{ID: "p-1", Content: "one", DocumentName: "a.txt"},
		{ID: "p-2", Content: "two", DocumentName: "a.txt"},
	}))

	got, err := s.GetParents(ctx, []string{"p-2", "missing", "p-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	ids := []string{got[0].ID, got[1].ID}
	assert.ElementsMatch(t, []string{"p-1", "p-2"}, ids)

	got, err = s.GetParents(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func ChildSearch(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := chunk.Parent{ID: "p-1", Content: "north east south", DocumentName: "a.txt"}
	require.NoError(t, s.UpsertParents(ctx, []chunk.Parent{p}))
	require.NoError(t, s.UpsertChildren(ctx, []chunk.Child{
		child(p, 0, "north", 0, 1, 0),
		child(p, 1, "east", 1, 0, 0),
		child(p, 2, "north-east", 0.7, 0.7, 0),
	}))

	hits, err := s.SearchChildren(ctx, []float32{0, 1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "north", hits[0].Text)
	assert.Equal(t, "north-east", hits[1].Text)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, "p-1", hits[0].ParentID)
	assert.Equal(t, "a.txt", hits[0].FileName)

	hits, err = s.SearchChildren(ctx, []float32{0, 1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

// HitsDoNotAlias mutates returned hits and checks the stored vectors are
// unaffected.
func HitsDoNotAlias(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := chunk.Parent{ID: "p-1", Content: "north east", DocumentName: "a.txt"}
	require.NoError(t, s.UpsertParents(ctx, []chunk.Parent{p}))
	in := []chunk.Child{child(p, 0, "north", 0, 1), child(p, 1, "east", 1, 0)}
	require.NoError(t, s.UpsertChildren(ctx, in))
	in[0].Embedding[1] = -1

	hits, err := s.SearchChildren(ctx, []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "north", hits[0].Text)
	for _, h := range hits {
		for i := range h.Embedding {
			h.Embedding[i] = -h.Embedding[i]
		}
	}

	again, err := s.SearchChildren(ctx, []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, "north", again[0].Text)
	assert.InDelta(t, 1.0, again[0].Score, 1e-4)
}

func SearchTies(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := chunk.Parent{ID: "p-1", Content: "same", DocumentName: "a.txt"}
	require.NoError(t, s.UpsertParents(ctx, []chunk.Parent{p}))
	for i := 0; i < 4; i++ {
		require.NoError(t, s.UpsertChildren(ctx, []chunk.Child{child(p, i, "same", 1, 0)}))
	}

	hits, err := s.SearchChildren(ctx, []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	for i, h := range hits {
		assert.Equal(t, i, h.Index, "tie at position %d", i)
	}
}

func ChildOverwrite(t *testing.T, s store.Store) {
	ctx := context.Background()
	p1 := chunk.Parent{ID: "p-1", Content: "old", DocumentName: "a.txt"}
	p2 := chunk.Parent{ID: "p-2", Content: "new", DocumentName: "a.txt"}
	require.NoError(t, s.UpsertParents(ctx, []chunk.Parent{p1, p2}))
	require.NoError(t, s.UpsertChildren(ctx, []chunk.Child{child(p1, 0, "old text", 1, 0)}))
	require.NoError(t, s.UpsertChildren(ctx, []chunk.Child{child(p2, 0, "new text", 1, 0)}))

	hits, err := s.SearchChildren(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new text", hits[0].Text)
	assert.Equal(t, "p-2", hits[0].ParentID)
}

func RejectsUnembedded(t *testing.T, s store.Store) {
	p := chunk.Parent{ID: "p-1", Content: "x", DocumentName: "a.txt"}
	err := s.UpsertChildren(context.Background(), []chunk.Child{chunk.NewChild(0, "x", p)})
	assert.Error(t, err)
}
