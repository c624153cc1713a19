package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docrag/internal/parser"
	"github.com/dgallion1/docrag/internal/ragerr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, parser.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ragerr.ErrIncomplete):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch ragerr.KindOf(err) {
	case ragerr.KindValidation:
		return http.StatusBadRequest
	case ragerr.KindExtraction:
		return http.StatusUnprocessableEntity
	case ragerr.KindEmbedding, ragerr.KindRefinement, ragerr.KindGeneration:
		if ragerr.IsRetryable(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError reports err with its mapped status and kind.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := map[string]any{"error": err.Error()}
	if kind := ragerr.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	if errors.Is(err, ragerr.ErrIncomplete) {
		body["incomplete"] = true
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "status", code, "error", err)
	}
	writeJSON(w, code, body)
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
