// Package executor provides the out-of-process executor used to run work
// and action orders. The request is handed to a configured command on stdin;
// the command answers with a flat JSON object of response fields on stdout.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/seantiz/inductor/internal/dispatch"
	"github.com/seantiz/inductor/internal/model"
)

const (
	// maxStderr caps how much stderr is kept for error messages.
	maxStderr = 4096
	// waitDelay bounds how long output pipes may stay open after the
	// command is killed, e.g. by an orphaned grandchild.
	waitDelay = time.Second
)

// Command runs requests through an external command. The kind and correlation
// id are appended to Args.
type Command struct {
	Args []string
	// Timeout bounds a single run. Zero means no bound.
	Timeout time.Duration
	Logger  *slog.Logger
}

var _ dispatch.Executor = (*Command)(nil)

// NewCommand creates a command executor. It returns nil for an empty command
// line so callers can skip registration.
func NewCommand(args []string, timeout time.Duration, logger *slog.Logger) *Command {
	if len(args) == 0 {
		return nil
	}
	return &Command{Args: args, Timeout: timeout, Logger: logger}
}

// Process implements dispatch.Executor.
func (c *Command) Process(ctx context.Context, req model.Request, correlationID string) (model.Envelope, error) {
	if len(c.Args) == 0 {
		return nil, errors.New("no command configured")
	}

	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), c.Args[1:]...), string(req.Kind()), correlationID)
	cmd := exec.CommandContext(ctx, c.Args[0], args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := cmd.Run()
	if c.Logger != nil {
		c.Logger.Debug("executor command finished",
			"command", c.Args[0],
			"type", req.Kind(),
			"correlation_id", correlationID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("command timed out after %s", c.Timeout)
		}
		return nil, fmt.Errorf("run %s: %w: %s", c.Args[0], runErr, tail(stderr.String()))
	}

	return parseEnvelope(stdout.Bytes())
}

// parseEnvelope decodes the command's stdout. Empty output is an empty
// envelope; non-string values are rendered as their JSON text.
func parseEnvelope(out []byte) (model.Envelope, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return model.Envelope{}, nil
	}

	var fields model.StringMap
	if err := json.Unmarshal(out, &fields); err != nil {
		return nil, fmt.Errorf("decode command output: %w", err)
	}
	if fields == nil {
		return model.Envelope{}, nil
	}
	return model.Envelope(fields), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return s[len(s)-maxStderr:]
	}
	return s
}
