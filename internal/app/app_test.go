package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/pipeline"
)

// fakeServices answers the embedding, refinement and answer endpoints.
func fakeServices(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vectors := make([][]float64, len(req.Input))
		for i := range vectors {
			vectors[i] = []float64{1, 0.5}
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": vectors})
	})
	mux.HandleFunc("POST /refine", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"refined_query": "refined"})
	})
	mux.HandleFunc("POST /answer", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"answer": "grounded answer"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) config.Config {
	return config.Config{
		EmbedURL:             baseURL + "/embed",
		RefineURL:            baseURL + "/refine",
		AnswerURL:            baseURL + "/answer",
		ParentMaxChars:       200,
		ChildMaxChars:        50,
		ChildOverlapFraction: 0.1,
		ParentStore:          config.BackendMemory,
		ChildStore:           config.BackendMemory,
		WorkerCount:          1,
		MaxQueueSize:         2,
		DefaultTopK:          5,
	}
}

func TestApp_IngestThenAnswer(t *testing.T) {
	srv := fakeServices(t)
	a, err := New(context.Background(), testConfig(srv.URL), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	doc := pipeline.Document{FileName: "notes.md", ContentType: "text/markdown", Data: []byte("# Notes\n\nThe sky is blue.")}
	res, err := a.Ingestor.Ingest(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Children == 0 || res.Dimensions != 2 {
		t.Errorf("unexpected ingest result %+v", res)
	}

	answer, err := a.Query.Answer(context.Background(), "what color is the sky?", 0)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !answer.Found || answer.Answer != "grounded answer" || answer.RefinedQuery != "refined" {
		t.Errorf("unexpected answer %+v", answer)
	}

	for name, s := range a.Stats {
		if s.Snapshot().Count == 0 {
			t.Errorf("no %s calls recorded", name)
		}
	}
}

func TestApp_NewOrchestrator(t *testing.T) {
	srv := fakeServices(t)
	a, err := New(context.Background(), testConfig(srv.URL), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	o := a.NewOrchestrator()
	o.Start(context.Background())
	defer o.Stop()
	if o.QueueDepth() != 0 {
		t.Errorf("expected empty queue, got %d", o.QueueDepth())
	}
}
