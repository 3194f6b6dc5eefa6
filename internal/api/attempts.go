package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/inductor/internal/model"
	"github.com/seantiz/inductor/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// listAttemptsResponse wraps the paginated list response.
type listAttemptsResponse struct {
	Attempts []*model.Attempt `json:"attempts"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a, err := s.store.GetAttempt(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "attempt not found")
		return
	}
	if err != nil {
		s.logger.Error("get attempt", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get attempt")
		return
	}

	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	attempts, total, err := s.store.ListAttempts(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list attempts", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}

	if attempts == nil {
		attempts = []*model.Attempt{}
	}

	s.writeJSON(w, http.StatusOK, listAttemptsResponse{
		Attempts: attempts,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter, falling back to defaultVal.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultVal
	}
	return v
}
