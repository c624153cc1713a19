// Package qdrant keeps children in a Qdrant collection over its REST API.
// The collection is created with cosine distance on first write.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docrag/internal/chunk"
	"github.com/dgallion1/docrag/internal/store"
)

var _ store.ChildStore = (*ChildStore)(nil)

// pointNamespace derives stable point ids from child keys.
var pointNamespace = uuid.MustParse("6f1c7d2e-9a0b-4c55-8e3d-2b7a61f0c9d4")

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// ChildStore implements store.ChildStore on Qdrant.
type ChildStore struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.Mutex
	dimension int // 0 until the collection is known to exist
}

func NewChildStore(cfg Config) *ChildStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "docrag_children"
	}
	return &ChildStore{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

type point struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector"`
	Payload pointPayload `json:"payload"`
}

type pointPayload struct {
	FileName string `json:"file_name"`
	Index    int    `json:"index"`
	ParentID string `json:"parent_id"`
	Text     string `json:"text"`
	Seq      int64  `json:"seq"`
}

// PointID is the Qdrant id for a child: a name-based UUID of its key.
func PointID(c chunk.Child) string {
	return uuid.NewSHA1(pointNamespace, []byte(c.Key())).String()
}

func (s *ChildStore) UpsertChildren(ctx context.Context, children []chunk.Child) error {
	if err := store.ValidateChildren(children); err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(children[0].Embedding)); err != nil {
		return err
	}

	base := time.Now().UnixNano()
	points := make([]point, len(children))
	for i, c := range children {
		points[i] = point{
			ID:     PointID(c),
			Vector: c.Embedding,
			Payload: pointPayload{
				FileName: c.FileName,
				Index:    c.Index,
				ParentID: c.ParentID,
				Text:     c.Text,
				Seq:      base + int64(i),
			},
		}
	}
	return s.do(ctx, http.MethodPut, "/collections/"+s.collection+"/points?wait=true",
		map[string]any{"points": points}, nil)
}

func (s *ChildStore) SearchChildren(ctx context.Context, vector []float32, topK int) ([]chunk.ScoredChild, error) {
	if topK <= 0 {
		return nil, nil
	}
	var resp struct {
		Result []struct {
			Score   float32      `json:"score"`
			Payload pointPayload `json:"payload"`
		} `json:"result"`
	}
	req := map[string]any{"vector": vector, "limit": topK, "with_payload": true}
	err := s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/search", req, &resp)
	if isNotFound(err) {
		// Nothing has been ingested yet.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	hits := make([]store.Ranked, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, store.Ranked{
			ScoredChild: chunk.ScoredChild{
				Child: chunk.Child{
					Index:    r.Payload.Index,
					Text:     r.Payload.Text,
					ParentID: r.Payload.ParentID,
					FileName: r.Payload.FileName,
				},
				Score: r.Score,
			},
			Seq: r.Payload.Seq,
		})
	}
	return store.TopK(hits, topK), nil
}

// ensureCollection creates the collection unless it already exists.
func (s *ChildStore) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 {
		if s.dimension != dimension {
			return fmt.Errorf("qdrant: collection %s has dimension %d, got %d", s.collection, s.dimension, dimension)
		}
		return nil
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, "/collections/"+s.collection, nil, &info)
	switch {
	case err == nil:
		s.dimension = info.Result.Config.Params.Vectors.Size
		if s.dimension != dimension {
			return fmt.Errorf("qdrant: collection %s has dimension %d, got %d", s.collection, s.dimension, dimension)
		}
		return nil
	case !isNotFound(err):
		return err
	}

	body := map[string]any{"vectors": map[string]any{"size": dimension, "distance": "Cosine"}}
	if err := s.do(ctx, http.MethodPut, "/collections/"+s.collection, body, nil); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

type statusError struct {
	method, path string
	status       int
	body         string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s: status %d: %s", e.method, e.path, e.status, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusNotFound
}

func (s *ChildStore) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("qdrant: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, body)
	if err != nil {
		return fmt.Errorf("qdrant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{method: method, path: path, status: resp.StatusCode, body: string(msg)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}

func (s *ChildStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
