package api

import "net/http"

// statusResponse is the JSON response for GET /v1/status.
type statusResponse struct {
	QueueName     string `json:"queue_name"`
	QueueBacklog  int64  `json:"queue_backlog"`
	ActiveWork    int64  `json:"active_work"`
	IntakeStopped bool   `json:"intake_stopped"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.queue.Status(r.Context())
	if err != nil {
		s.logger.Error("get queue status", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		QueueName:     st.QueueName,
		QueueBacklog:  st.QueueBacklog,
		ActiveWork:    s.work.Active(),
		IntakeStopped: st.IntakeStopped,
	})
}
