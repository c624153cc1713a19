package api

import (
	"encoding/json"
	"net/http"
)

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
	// Refine applies to retrieval only; answers always refine.
	Refine *bool `json:"refine,omitempty"`
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	if req.Query == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Query.Answer(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	refine := req.Refine == nil || *req.Refine
	res, err := s.deps.Query.Retrieve(r.Context(), req.Query, req.TopK, refine)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
