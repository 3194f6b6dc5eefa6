// Package admission gates new work on local disk headroom. When the data
// directory runs low the controller stops intake, waits for in-flight work to
// finish and terminates the process rather than risk partial writes.
package admission

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/inductor/internal/drain"
)

// ExitCodeCapacity is the process exit status after a capacity halt.
const ExitCodeCapacity = 1

// Decision is the outcome of a capacity check.
type Decision int

const (
	// Admit means headroom is at or above the threshold.
	Admit Decision = iota
	// Halt means headroom fell below the threshold. In production Check never
	// returns it because the process exits first.
	Halt
)

func (d Decision) String() string {
	if d == Halt {
		return "halt"
	}
	return "admit"
}

// Options configures a Controller.
type Options struct {
	DataDir   string
	MinFreeMB int64
	// PollInterval is the drain wait cadence during a halt.
	PollInterval time.Duration
	// Exit terminates the process. Defaults to os.Exit.
	Exit func(code int)
}

// Controller performs admission checks.
type Controller struct {
	opts    Options
	probe   Probe
	intake  drain.Stopper
	tracker *drain.Tracker
	logger  *slog.Logger
}

// NewController creates an admission controller.
func NewController(opts Options, probe Probe, intake drain.Stopper, tracker *drain.Tracker, logger *slog.Logger) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = drain.DefaultPollInterval
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	return &Controller{
		opts:    opts,
		probe:   probe,
		intake:  intake,
		tracker: tracker,
		logger:  logger,
	}
}

// Check compares free space on the data directory with the threshold.
//
// Below the threshold it stops intake, waits until no work is in flight and
// exits with ExitCodeCapacity. A probe error is logged and admits.
func (c *Controller) Check(ctx context.Context) Decision {
	free, err := c.probe.FreeBytes(c.opts.DataDir)
	if err != nil {
		c.logger.Error("free space probe failed", "data_dir", c.opts.DataDir, "error", err)
		return Admit
	}

	freeMB := int64(free / 1024 / 1024)
	dataDirFreeMB.Set(float64(freeMB))

	if freeMB >= c.opts.MinFreeMB {
		c.logger.Debug("data dir free space", "data_dir", c.opts.DataDir, "free_mb", freeMB)
		return Admit
	}

	capacityHaltsTotal.Inc()
	c.halt(ctx, freeMB)
	return Halt
}

func (c *Controller) halt(ctx context.Context, freeMB int64) {
	attrs := []any{
		"data_dir", c.opts.DataDir,
		"free_mb", freeMB,
		"min_free_mb", c.opts.MinFreeMB,
	}

	c.logger.Error("stopping intake due to low free space", attrs...)
	c.tracker.Close()
	c.intake.Stop()

	c.tracker.Wait(ctx, drain.WaitOptions{
		Interval: c.opts.PollInterval,
		Logger:   c.logger,
		Level:    slog.LevelError,
		Message:  "shutdown in progress due to low free space",
		Attrs:    attrs,
	})

	c.logger.Error("exiting after capacity drain", "exit_code", ExitCodeCapacity)
	c.opts.Exit(ExitCodeCapacity)
}

// Monitor runs Check every interval until ctx is done, so exhaustion is
// caught even while no messages arrive. A non-positive interval disables it.
func (c *Controller) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if c.Check(ctx) == Halt {
				return
			}
		}
	}
}
