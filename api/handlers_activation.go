package api

import (
	"net/http"
	"time"

	"longentry/ranking"
)

type overrideRequest struct {
	// Active forces the symbol on or off; null clears the override.
	Active  *bool  `json:"active"`
	Version *int64 `json:"version,omitempty"`
}

type overrideResponse struct {
	Symbol    string `json:"symbol"`
	WeekStart string `json:"week_start"`
	Override  string `json:"override"`
	IsActive  bool   `json:"is_active"`
	Version   int64  `json:"version"`
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	var req overrideRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o := ranking.Auto()
	if req.Active != nil {
		o = ranking.Forced(*req.Active)
	}
	row, err := s.deps.Overrides.Set(r.Context(), symbol, o, req.Version)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, overrideResponse{
		Symbol:    row.Symbol,
		WeekStart: row.WeekStart.Format(time.DateOnly),
		Override:  o.String(),
		IsActive:  row.IsActive,
		Version:   row.Version,
	})
}

type poolResponse struct {
	Pool      string   `json:"pool"`
	MaxActive int      `json:"max_active"`
	MinScore  float64  `json:"min_score"`
	WeekStart string   `json:"week_start,omitempty"`
	Active    []string `json:"active,omitempty"`
}

func (s *Server) handleGetMaxActive(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Pools.Pool(r.Context(), r.PathValue("pool"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, poolResponse{Pool: p.Name, MaxActive: p.MaxActive, MinScore: p.MinScore})
}

type maxActiveRequest struct {
	MaxActive *int     `json:"max_active"`
	MinScore  *float64 `json:"min_score,omitempty"`
}

// handleSetMaxActive stores a new cap and re-ranks the latest week.
func (s *Server) handleSetMaxActive(w http.ResponseWriter, r *http.Request) {
	var req maxActiveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MaxActive == nil {
		respondWithError(w, http.StatusBadRequest, "max_active is required", nil)
		return
	}

	res, err := s.deps.Pools.Rerank(r.Context(), r.PathValue("pool"), *req.MaxActive, req.MinScore)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	resp := poolResponse{
		Pool:      res.Pool.Name,
		MaxActive: res.Pool.MaxActive,
		MinScore:  res.Pool.MinScore,
		Active:    res.Active,
	}
	if !res.WeekStart.IsZero() {
		resp.WeekStart = res.WeekStart.Format(time.DateOnly)
	}
	respondWithJSON(w, http.StatusOK, resp)
}
