package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/dgallion1/docrag/internal/chunker"
	"github.com/dgallion1/docrag/internal/parser"
	"github.com/dgallion1/docrag/internal/ragerr"
)

var smallSplit = chunker.Config{ParentMaxChars: 100, ChildMaxChars: 20, ChildOverlapFraction: 0.1}

func plainDoc(text string) Document {
	return Document{FileName: "f.txt", ContentType: "text/plain", Data: []byte(text)}
}

func TestIngest_EndToEnd(t *testing.T) {
	st := newSpyStore()
	emb := &hashEmbedder{}
	ing := NewIngestor(parser.Extractor{}, emb, st, smallSplit, nil)
	var log statusLog

	res, err := ing.Ingest(context.Background(), plainDoc("Para one.\n\nPara two."), log.track)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Parents != 1 {
		t.Errorf("expected 1 parent, got %d", res.Parents)
	}
	if res.Children < 1 {
		t.Errorf("expected at least 1 child, got %d", res.Children)
	}
	if res.Dimensions != 3 {
		t.Errorf("expected 3 dimensions, got %d", res.Dimensions)
	}

	want := []JobStatus{StatusExtracted, StatusSplit, StatusPolished, StatusEmbedded, StatusPersisted}
	if got := log.statuses(); !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}

	parents, children := st.Len()
	if parents != 1 || children != res.Children {
		t.Fatalf("store holds %d parents, %d children", parents, children)
	}

	hits, err := st.SearchChildren(context.Background(), []float32{1, 1, 1}, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.FileName != "f.txt" {
			t.Errorf("child %d has file name %q", h.Index, h.FileName)
		}
		got, err := st.GetParents(context.Background(), []string{h.ParentID})
		if err != nil || len(got) != 1 {
			t.Errorf("child %d: parent %s not found (%v)", h.Index, h.ParentID, err)
		}
	}
}

func TestIngest_ExtractionFailure(t *testing.T) {
	st := newSpyStore()
	emb := &hashEmbedder{}
	ing := NewIngestor(parser.Extractor{}, emb, st, smallSplit, nil)
	var log statusLog

	_, err := ing.Ingest(context.Background(), Document{FileName: "a.png", ContentType: "image/png", Data: []byte{1}}, log.track)
	if !ragerr.IsKind(err, ragerr.KindExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if emb.callCount() != 0 {
		t.Error("embedder should not be called")
	}
	if got := log.statuses(); !slices.Equal(got, []JobStatus{StatusFailed}) {
		t.Errorf("statuses = %v", got)
	}
}

func TestIngest_NoText(t *testing.T) {
	ing := NewIngestor(parser.Extractor{}, &hashEmbedder{}, newSpyStore(), smallSplit, nil)
	_, err := ing.Ingest(context.Background(), plainDoc(" \n\n "), nil)
	if !errors.Is(err, parser.ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestIngest_MissingFileName(t *testing.T) {
	ing := NewIngestor(parser.Extractor{}, &hashEmbedder{}, newSpyStore(), smallSplit, nil)
	_, err := ing.Ingest(context.Background(), Document{ContentType: "text/plain", Data: []byte("x")}, nil)
	if !ragerr.IsKind(err, ragerr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIngest_EmbeddingFailurePersistsNothing(t *testing.T) {
	st := newSpyStore()
	emb := &hashEmbedder{errs: []error{ragerr.Upstream(ragerr.KindEmbedding, "embed", 500, "boom")}}
	ing := NewIngestor(parser.Extractor{}, emb, st, smallSplit, nil)
	var log statusLog

	_, err := ing.Ingest(context.Background(), plainDoc("Para one.\n\nPara two."), log.track)
	if !ragerr.IsKind(err, ragerr.KindEmbedding) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if p, c := st.calls(); p != 0 || c != 0 {
		t.Errorf("expected no store writes, got %d parent and %d child calls", p, c)
	}
	got := log.statuses()
	if got[len(got)-1] != StatusFailed || slices.Contains(got, StatusEmbedded) {
		t.Errorf("statuses = %v", got)
	}
}

func TestIngest_UntaggedEmbedderErrorIsWrapped(t *testing.T) {
	emb := &hashEmbedder{errs: []error{errors.New("socket closed")}}
	ing := NewIngestor(parser.Extractor{}, emb, newSpyStore(), smallSplit, nil)
	_, err := ing.Ingest(context.Background(), plainDoc("hello"), nil)
	if !ragerr.IsKind(err, ragerr.KindEmbedding) {
		t.Fatalf("expected embedding error, got %v", err)
	}
}

func TestIngest_VectorCountMismatch(t *testing.T) {
	st := newSpyStore()
	ing := NewIngestor(parser.Extractor{}, &hashEmbedder{short: true}, st, smallSplit, nil)
	_, err := ing.Ingest(context.Background(), plainDoc("hello"), nil)
	if !ragerr.IsKind(err, ragerr.KindEmbedding) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if _, c := st.calls(); c != 0 {
		t.Error("children must not be written")
	}
}

func TestIngest_ChildPersistenceFailure(t *testing.T) {
	st := newSpyStore()
	st.failChildren = errors.New("disk full")
	ing := NewIngestor(parser.Extractor{}, &hashEmbedder{}, st, smallSplit, nil)
	var log statusLog

	_, err := ing.Ingest(context.Background(), plainDoc("Para one.\n\nPara two."), log.track)
	if !ragerr.IsKind(err, ragerr.KindPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if errors.Is(err, ragerr.ErrIncomplete) {
		t.Error("plain store failure is not an interruption")
	}
	parents, children := st.Len()
	if parents != 1 || children != 0 {
		t.Errorf("expected orphaned parent only, got %d parents, %d children", parents, children)
	}
	got := log.statuses()
	if got[len(got)-1] != StatusFailed {
		t.Errorf("statuses = %v", got)
	}
}

func TestIngest_CancelledBeforePersistence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := newSpyStore()
	emb := &hashEmbedder{hook: func(context.Context) { cancel() }}
	ing := NewIngestor(parser.Extractor{}, emb, st, smallSplit, nil)

	_, err := ing.Ingest(ctx, plainDoc("Para one.\n\nPara two."), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ragerr.ErrIncomplete) {
		t.Error("nothing was written, ingestion is not incomplete")
	}
	if p, c := st.calls(); p != 0 || c != 0 {
		t.Errorf("expected no store writes, got %d/%d", p, c)
	}
}

func TestIngest_CancelledDuringPersistence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := newSpyStore()
	st.onParents = func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}
	ing := NewIngestor(parser.Extractor{}, &hashEmbedder{}, st, smallSplit, nil)
	var log statusLog

	_, err := ing.Ingest(ctx, plainDoc("Para one.\n\nPara two."), log.track)
	if !errors.Is(err, ragerr.ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	got := log.statuses()
	if got[len(got)-1] != StatusIncomplete {
		t.Errorf("statuses = %v", got)
	}
}
