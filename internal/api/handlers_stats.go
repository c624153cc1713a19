package api

import (
	"net/http"

	"github.com/dgallion1/docrag/internal/llm"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if len(s.deps.Stats) == 0 {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	out := make(map[string]llm.StatsSnapshot, len(s.deps.Stats))
	for name, st := range s.deps.Stats {
		out[name] = st.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": out})
}
