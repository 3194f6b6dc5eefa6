// testserver runs the inductor runtime against an embedded Redis with stub
// executors, for end-to-end tests.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/seantiz/inductor/internal/app"
	"github.com/seantiz/inductor/internal/config"
	"github.com/seantiz/inductor/internal/dispatch"
	"github.com/seantiz/inductor/internal/model"
)

// stubExecutor answers every order after a fixed delay. Orders whose action
// is "fail" return an error.
type stubExecutor struct {
	name  string
	delay time.Duration
}

func (s *stubExecutor) Process(ctx context.Context, req model.Request, _ string) (model.Envelope, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if req.Action() == "fail" {
		return nil, errors.New("stub failure requested")
	}
	return model.Envelope{
		"status":   "success",
		"executor": s.name,
		"ciClass":  req.ClassName(),
	}, nil
}

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	mr := miniredis.NewMiniRedis()
	if err := mr.StartAddr(cfg.RedisAddr); err != nil {
		log.Fatalf("failed to start embedded redis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	delay := 200 * time.Millisecond
	if v, err := time.ParseDuration(os.Getenv("INDUCTOR_STUB_DELAY")); err == nil {
		delay = v
	}

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("testserver: starting", "redis_addr", mr.Addr(), "stub_delay", delay)
	code := app.Run(context.Background(), app.Options{
		Config: cfg,
		Logger: logger,
		Redis:  rdb,
		Executors: map[model.Kind]dispatch.Executor{
			model.KindWorkOrder:   &stubExecutor{name: "stub-workorder", delay: delay},
			model.KindActionOrder: &stubExecutor{name: "stub-actionorder", delay: delay},
		},
	}, signals)

	if code != app.ExitOK {
		mr.Close()
		os.Exit(code)
	}
}
