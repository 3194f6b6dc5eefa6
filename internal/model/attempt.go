package model

import "time"

// Outcome values recorded for a processing attempt.
const (
	OutcomeAcknowledged = "acknowledged"
	OutcomeDropped      = "dropped"
	OutcomeFailed       = "failed"
)

// Attempt is the history record of one delivery handled by a worker slot.
type Attempt struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Type          string    `json:"type"`
	ClassName     string    `json:"class_name,omitempty"`
	Action        string    `json:"action,omitempty"`
	NsPath        string    `json:"ns_path,omitempty"`
	Slot          string    `json:"slot"`
	Outcome       string    `json:"outcome"`
	QueueTimeS    *float64  `json:"queue_time_s,omitempty"`
	Error         *string   `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	DurationMS    int64     `json:"duration_ms"`
}
