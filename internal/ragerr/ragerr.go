// Package ragerr is the error taxonomy shared by ingestion and query paths.
package ragerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"unicode/utf8"
)

// Kind classifies which step of the pipeline failed.
type Kind string

const (
	KindExtraction  Kind = "extraction"
	KindEmbedding   Kind = "embedding"
	KindPersistence Kind = "persistence"
	KindRefinement  Kind = "refinement"
	KindGeneration  Kind = "generation"
	KindValidation  Kind = "validation"
)

// ErrIncomplete marks an ingestion that was interrupted after persistence
// began. Some records may have been written.
var ErrIncomplete = errors.New("ingested with unknown completeness")

// Error is a pipeline failure. StatusCode and Body are set when an upstream
// HTTP service answered with a non-OK status.
type Error struct {
	Kind       Kind
	Op         string
	Subject    string // file name or query, for diagnostics
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.Subject != "" {
		msg += fmt.Sprintf(" (%s)", e.Subject)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
		if e.Body != "" {
			msg += ": " + Truncate(e.Body, 200)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient: upstream 429 or 5xx,
// or a network timeout.
func (e *Error) Retryable() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

func newError(kind Kind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

func Extraction(op, subject string, err error) *Error {
	return newError(KindExtraction, op, subject, err)
}

func Embedding(op string, err error) *Error {
	return newError(KindEmbedding, op, "", err)
}

func Persistence(op string, err error) *Error {
	return newError(KindPersistence, op, "", err)
}

func Refinement(op, query string, err error) *Error {
	return newError(KindRefinement, op, query, err)
}

func Generation(op string, err error) *Error {
	return newError(KindGeneration, op, "", err)
}

func Validation(op string, err error) *Error {
	return newError(KindValidation, op, "", err)
}

// Upstream builds an error for a non-OK HTTP answer.
func Upstream(kind Kind, op string, status int, body string) *Error {
	return &Error{Kind: kind, Op: op, StatusCode: status, Body: body}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// Truncate shortens s to at most max bytes, backing off to a rune boundary,
// and marks the cut with "...".
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
