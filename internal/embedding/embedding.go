// Package embedding is the client for the hosted embedding service.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgallion1/docrag/internal/llm"
	"github.com/dgallion1/docrag/internal/ragerr"
)

// Default configuration values.
const (
	DefaultMaxBatch = 64
	DefaultTimeout  = 60 * time.Second

	maxErrorBody = 4096
)

// Config holds configuration for the embedding client.
type Config struct {
	URL    string
	APIKey string

	// MaxBatch caps how many texts go into one HTTP request. Larger inputs
	// are sent as consecutive sub-batches of a single logical call.
	MaxBatch int

	// RequestsPerSecond throttles sub-batch requests. Zero disables it.
	RequestsPerSecond float64

	Timeout time.Duration
	Stats   *llm.Stats
}

// Client turns texts into vectors. It is safe for concurrent use.
type Client struct {
	url        string
	apiKey     string
	maxBatch   int
	limiter    *rate.Limiter
	httpClient *http.Client
	stats      *llm.Stats
}

type embedRequest struct {
	Input []string `json:"input"`
}

type embedResponse struct {
	Embedding [][]float64 `json:"embedding"`
}

func NewClient(cfg Config) *Client {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		maxBatch:   cfg.MaxBatch,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		stats:      cfg.Stats,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Embed returns one vector per text, in input order. The call is atomic:
// either every text is embedded or an error is returned and no vectors are.
// Every vector has the same dimensionality.
func (c *Client) Embed(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()
	defer func() { c.stats.Observe(start, err) }()

	vectors = make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += c.maxBatch {
		hi := min(lo+c.maxBatch, len(texts))
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, ragerr.Embedding(batchOp(lo, hi, len(texts)), err)
			}
		}
		batch, err := c.embedBatch(ctx, texts[lo:hi], batchOp(lo, hi, len(texts)))
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, ragerr.Embedding("embed", fmt.Errorf("vector %d is empty", i))
		}
		if len(v) != dim {
			return nil, ragerr.Embedding("embed", fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim))
		}
	}
	return vectors, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string, op string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Input: texts})
	if err != nil {
		return nil, ragerr.Embedding(op, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, ragerr.Embedding(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ragerr.Embedding(op, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, ragerr.Upstream(ragerr.KindEmbedding, op, resp.StatusCode, string(msg))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ragerr.Embedding(op, fmt.Errorf("decode response: %w", err))
	}
	if out.Embedding == nil {
		return nil, ragerr.Embedding(op, errors.New("response has no embedding field"))
	}
	if len(out.Embedding) != len(texts) {
		return nil, ragerr.Embedding(op, fmt.Errorf("got %d vectors for %d texts", len(out.Embedding), len(texts)))
	}

	vectors := make([][]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec := make([]float32, len(v))
		for j, x := range v {
			vec[j] = float32(x)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func batchOp(lo, hi, total int) string {
	if lo == 0 && hi == total {
		return "embed"
	}
	return fmt.Sprintf("embed texts %d-%d of %d", lo, hi-1, total)
}
