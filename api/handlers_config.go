package api

import (
	"net/http"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			respondWithError(w, http.StatusServiceUnavailable, "database unavailable", err)
			return
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetEAConfig serves the parameters a trading client applies this week.
func (s *Server) handleGetEAConfig(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		respondWithError(w, http.StatusBadRequest, "symbol is required", nil)
		return
	}
	cfg, err := s.deps.Query.EAConfig(r.Context(), symbol)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cfg)
}
