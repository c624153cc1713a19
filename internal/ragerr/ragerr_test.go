package ragerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestKindOf_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("ingest a.txt: %w", Embedding("embed children", errors.New("boom")))
	if got := KindOf(err); got != KindEmbedding {
		t.Errorf("expected embedding kind, got %q", got)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain error should have no kind")
	}
	if !IsKind(err, KindEmbedding) || IsKind(err, KindPersistence) {
		t.Error("IsKind mismatch")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{Upstream(KindEmbedding, "embed", 429, "slow down"), true},
		{Upstream(KindEmbedding, "embed", 503, "unavailable"), true},
		{Upstream(KindEmbedding, "embed", 400, "bad input"), false},
		{Refinement("refine", "q", timeoutErr{}), true},
		{Persistence("upsert", errors.New("constraint")), false},
		{errors.New("plain"), false},
		{fmt.Errorf("wrap: %w", Upstream(KindGeneration, "generate", 502, "")), true},
	}
	for i, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("case %d (%v): expected %v, got %v", i, c.err, c.want, got)
		}
	}
}

func TestIsRetryable_CanceledIsNot(t *testing.T) {
	err := Embedding("embed", fmt.Errorf("%w", context.Canceled))
	if IsRetryable(err) {
		t.Error("canceled work should not be retried")
	}
}

func TestError_MessageCarriesStatusAndBody(t *testing.T) {
	err := Upstream(KindEmbedding, "embed batch 0-63", 500, strings.Repeat("x", 500))
	msg := err.Error()
	if !strings.Contains(msg, "status 500") {
		t.Errorf("expected status in message, got %q", msg)
	}
	if len(msg) > 300 {
		t.Errorf("body should be truncated, message length %d", len(msg))
	}
	if err.Body == "" || len(err.Body) != 500 {
		t.Error("full body should be kept on the error for diagnostics")
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"héllo", 2, "h..."},
		{"日本語", 4, "日..."},
		{"日本語", 1, "..."},
	}
	for _, c := range cases {
		got := Truncate(c.in, c.max)
		if got != c.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", c.in, c.max, got, c.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Truncate(%q, %d) produced invalid UTF-8", c.in, c.max)
		}
	}
}

func TestError_TruncatedBodyStaysValidUTF8(t *testing.T) {
	err := Upstream(KindGeneration, "generate", 502, strings.Repeat("é", 150))
	if msg := err.Error(); !utf8.ValidString(msg) {
		t.Errorf("message is not valid UTF-8: %q", msg)
	}
}
