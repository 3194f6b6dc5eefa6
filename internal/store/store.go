package store

import (
	"context"

	"github.com/seantiz/inductor/internal/model"
)

// AttemptStats holds aggregate processing statistics.
type AttemptStats struct {
	Total          int            `json:"total"`
	CountByOutcome map[string]int `json:"count_by_outcome"`
	CountByType    map[string]int `json:"count_by_type"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
	AvgQueueTimeS  float64        `json:"avg_queue_time_s"`
}

// Store defines the persistence operations for attempt history.
type Store interface {
	RecordAttempt(ctx context.Context, a *model.Attempt) error
	GetAttempt(ctx context.Context, id string) (*model.Attempt, error)
	ListAttempts(ctx context.Context, limit, offset int) ([]*model.Attempt, int, error)
	GetAttemptStats(ctx context.Context) (*AttemptStats, error)
	Close() error
}
