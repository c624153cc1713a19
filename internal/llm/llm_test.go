package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/docrag/internal/ragerr"
)

func jsonServer(t *testing.T, status int, body string, check func(r *http.Request, payload map[string]string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		payload := map[string]string{}
		_ = json.Unmarshal(raw, &payload)
		if check != nil {
			check(r, payload)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRefiner_ReturnsRefinedQuery(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"refined_query":"  quarterly revenue 2024 "}`, func(r *http.Request, p map[string]string) {
		if p["user_query"] != "how much money last year" {
			t.Errorf("unexpected user_query %q", p["user_query"])
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer auth, got %q", r.Header.Get("Authorization"))
		}
	})

	stats := NewStats(time.Hour)
	r := NewRefiner(Config{URL: srv.URL, APIKey: "secret", Stats: stats})
	defer r.Close()

	got, err := r.Refine(context.Background(), "how much money last year")
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if got != "quarterly revenue 2024" {
		t.Errorf("unexpected refined query %q", got)
	}
	if stats.Snapshot().Count != 1 {
		t.Error("expected one latency sample")
	}
}

func TestRefiner_MissingFieldIsRefinementError(t *testing.T) {
	for _, body := range []string{`{}`, `{"refined_query":"   "}`, `not json`} {
		srv := jsonServer(t, http.StatusOK, body, nil)
		_, err := NewRefiner(Config{URL: srv.URL}).Refine(context.Background(), "q")
		if !ragerr.IsKind(err, ragerr.KindRefinement) {
			t.Errorf("body %q: expected refinement error, got %v", body, err)
		}
	}
}

func TestRefiner_UpstreamFailure(t *testing.T) {
	srv := jsonServer(t, http.StatusServiceUnavailable, "overloaded", nil)
	_, err := NewRefiner(Config{URL: srv.URL}).Refine(context.Background(), "what is docrag")
	if !ragerr.IsKind(err, ragerr.KindRefinement) {
		t.Fatalf("expected refinement error, got %v", err)
	}
	if !ragerr.IsRetryable(err) {
		t.Error("503 should be retryable")
	}
	if !strings.Contains(err.Error(), "what is docrag") {
		t.Errorf("expected query in error, got %q", err.Error())
	}
}

func TestRefiner_LongQuerySubjectIsValidUTF8(t *testing.T) {
	query := strings.Repeat("ü", 100)
	for _, status := range []int{http.StatusOK, http.StatusBadGateway} {
		srv := jsonServer(t, status, `{}`, nil)
		_, err := NewRefiner(Config{URL: srv.URL}).Refine(context.Background(), query)
		var re *ragerr.Error
		if !errors.As(err, &re) {
			t.Fatalf("status %d: expected *ragerr.Error, got %v", status, err)
		}
		if !utf8.ValidString(re.Subject) || len(re.Subject) > 83 {
			t.Errorf("status %d: bad subject %q", status, re.Subject)
		}
		if !strings.HasSuffix(re.Subject, "...") {
			t.Errorf("status %d: subject should be marked as cut, got %q", status, re.Subject)
		}
	}
}

func TestGenerator_PassesContextAndQuery(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"answer":"  The answer is 42.  "}`, func(r *http.Request, p map[string]string) {
		if p["rag_context"] != "ctx one\n\nctx two" || p["user_query"] != "question?" {
			t.Errorf("unexpected payload %v", p)
		}
	})

	got, err := NewGenerator(Config{URL: srv.URL}).Generate(context.Background(), "ctx one\n\nctx two", "question?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "  The answer is 42.  " {
		t.Errorf("answer should be returned verbatim, got %q", got)
	}
}

func TestGenerator_MissingAnswerFallsBack(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"something":"else"}`, nil)
	got, err := NewGenerator(Config{URL: srv.URL}).Generate(context.Background(), "ctx", "q")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != NoAnswerFallback {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestGenerator_ErrorStatus(t *testing.T) {
	srv := jsonServer(t, http.StatusBadRequest, `{"detail":"bad"}`, nil)
	_, err := NewGenerator(Config{URL: srv.URL}).Generate(context.Background(), "ctx", "q")

	if !ragerr.IsKind(err, ragerr.KindGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if ragerr.IsRetryable(err) {
		t.Error("400 should not be retryable")
	}
}
