package drain

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is the cadence at which drain waits report progress.
const DefaultPollInterval = 10 * time.Second

// ErrIntakeClosed is returned by Acquire once shutdown has begun.
var ErrIntakeClosed = errors.New("intake closed")

// Tracker counts in-flight requests. It is safe for concurrent use.
//
// The idle channel is closed whenever the count is zero and replaced with a
// fresh open channel on the 0→1 transition.
type Tracker struct {
	mu     sync.Mutex
	active int64
	closed bool
	idle   chan struct{}
}

// NewTracker creates a tracker with a zero count.
func NewTracker() *Tracker {
	idle := make(chan struct{})
	close(idle)
	return &Tracker{idle: idle}
}

// Acquire records one accepted request. After Close it refuses with
// ErrIntakeClosed so the count can only go down during a drain.
func (t *Tracker) Acquire() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrIntakeClosed
	}
	if t.active == 0 {
		t.idle = make(chan struct{})
	}
	t.active++
	return nil
}

// Release records that an accepted request finished. Calls without a matching
// Acquire are ignored.
func (t *Tracker) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == 0 {
		return
	}
	t.active--
	if t.active == 0 {
		close(t.idle)
	}
}

// Active returns the current in-flight count.
func (t *Tracker) Active() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Close refuses further acquisitions. It is idempotent.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// Closed reports whether Close has been called.
func (t *Tracker) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Idle returns a channel that is closed while no work is in flight.
func (t *Tracker) Idle() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idle
}

// WaitOptions configures Wait's progress logging.
type WaitOptions struct {
	Interval time.Duration
	Logger   *slog.Logger
	Level    slog.Level
	Message  string
	Attrs    []any
}

// Wait blocks until the in-flight count reaches zero, logging the count every
// Interval. Cancelling ctx does not abort the wait: the interruption is logged
// once and waiting continues.
func (t *Tracker) Wait(ctx context.Context, opts WaitOptions) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	done := ctx.Done()
	for {
		idle := t.Idle()
		select {
		case <-idle:
			return
		default:
		}

		attrs := append([]any{"active", t.Active(), "sleep", opts.Interval.String()}, opts.Attrs...)
		opts.Logger.Log(context.Background(), opts.Level, opts.Message, attrs...)

		timer := time.NewTimer(opts.Interval)
		select {
		case <-idle:
			timer.Stop()
			return
		case <-timer.C:
		case <-done:
			timer.Stop()
			opts.Logger.Info("wait interrupted, still letting in-flight work complete", "active", t.Active())
			done = nil
		}
	}
}
