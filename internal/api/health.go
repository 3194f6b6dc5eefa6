package api

import "net/http"

const (
	healthOK       = "ok"
	healthDraining = "draining"
)

// healthResponse is the JSON response for GET /healthz. It is served with
// 200 while draining as well.
type healthResponse struct {
	Status     string `json:"status"`
	ActiveWork int64  `json:"active_work"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := healthOK
	if s.work.Closed() {
		status = healthDraining
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:     status,
		ActiveWork: s.work.Active(),
	})
}
