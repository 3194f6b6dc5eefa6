package drain

import (
	"context"
	"log/slog"
	"time"
)

// Stopper halts delivery of new messages. Implementations must be idempotent
// and must not block on in-flight work.
type Stopper interface {
	Stop()
}

// Coordinator performs the graceful drain triggered by a termination signal.
type Coordinator struct {
	tracker  *Tracker
	intake   Stopper
	logger   *slog.Logger
	interval time.Duration
}

// NewCoordinator creates a drain coordinator. A non-positive interval uses
// DefaultPollInterval.
func NewCoordinator(tracker *Tracker, intake Stopper, logger *slog.Logger, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Coordinator{
		tracker:  tracker,
		intake:   intake,
		logger:   logger,
		interval: interval,
	}
}

// BeginShutdown stops intake immediately and blocks until every accepted
// request has finished. It is meant to be called from the signal path, never
// from a message handler. Cancelling ctx (a second signal) is logged and
// otherwise ignored.
func (c *Coordinator) BeginShutdown(ctx context.Context) {
	c.logger.Info("stopping intake", "active", c.tracker.Active())
	c.tracker.Close()
	c.intake.Stop()

	c.tracker.Wait(ctx, WaitOptions{
		Interval: c.interval,
		Logger:   c.logger,
		Level:    slog.LevelInfo,
		Message:  "shutdown in progress",
	})

	c.logger.Info("shutdown done")
}
