package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int            `json:"total"`
	ByOutcome     map[string]int `json:"by_outcome"`
	ByType        map[string]int `json:"by_type"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	AvgQueueTimeS float64        `json:"avg_queue_time_s"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetAttemptStats(r.Context())
	if err != nil {
		s.logger.Error("get attempt stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByOutcome:     stats.CountByOutcome,
		ByType:        stats.CountByType,
		AvgDurationMS: stats.AvgDurationMS,
		AvgQueueTimeS: stats.AvgQueueTimeS,
	})
}
