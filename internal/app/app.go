// Package app wires the worker runtime together: Redis intake, admission,
// consumption loop, attempt history and the status server, plus the
// signal-driven drain.
package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/seantiz/inductor/internal/admission"
	"github.com/seantiz/inductor/internal/api"
	"github.com/seantiz/inductor/internal/config"
	"github.com/seantiz/inductor/internal/consumer"
	"github.com/seantiz/inductor/internal/dispatch"
	"github.com/seantiz/inductor/internal/drain"
	"github.com/seantiz/inductor/internal/executor"
	"github.com/seantiz/inductor/internal/liveness"
	"github.com/seantiz/inductor/internal/model"
	"github.com/seantiz/inductor/internal/queue"
	"github.com/seantiz/inductor/internal/store"
)

// Exit codes returned by Run.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// Options are the process-level dependencies of Run.
type Options struct {
	Config    config.Config
	Logger    *slog.Logger
	Redis     redis.UniversalClient
	Executors map[model.Kind]dispatch.Executor

	// Probe defaults to admission.StatfsProbe.
	Probe admission.Probe
	// Fs holds the liveness files. Defaults to the OS filesystem.
	Fs afero.Fs
	// Exit is called on a capacity halt. Defaults to os.Exit.
	Exit func(code int)
}

// CommandExecutors builds the executors configured as external commands.
// Kinds without a command are left out.
func CommandExecutors(cfg config.Config, logger *slog.Logger) map[model.Kind]dispatch.Executor {
	executors := make(map[model.Kind]dispatch.Executor)
	if c := executor.NewCommand(cfg.WorkOrderCmd, cfg.ExecTimeout, logger); c != nil {
		executors[model.KindWorkOrder] = c
	}
	if c := executor.NewCommand(cfg.ActionOrderCmd, cfg.ExecTimeout, logger); c != nil {
		executors[model.KindActionOrder] = c
	}
	return executors
}

// Run starts the runtime and blocks until a termination signal arrives or ctx
// is done, then drains in-flight work and returns the process exit code.
// Signals received while draining are logged and ignored.
func Run(ctx context.Context, opts Options, signals <-chan os.Signal) int {
	cfg := opts.Config
	logger := opts.Logger
	if opts.Probe == nil {
		opts.Probe = admission.StatfsProbe{}
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	logger.Info("inductor: starting", "config", cfg)

	if err := opts.Redis.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
		return ExitFailure
	}

	if err := opts.Fs.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data dir", "data_dir", cfg.DataDir, "error", err)
		return ExitFailure
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Error("open database", "db_path", cfg.DBPath, "error", err)
		return ExitFailure
	}
	defer db.Close()

	tracker := drain.NewTracker()
	intake := queue.NewConsumer(opts.Redis, queue.Options{
		Queue:           cfg.InQueue,
		ConsumerID:      cfg.ConsumerID,
		Concurrency:     cfg.Concurrency,
		PollTimeout:     cfg.PollTimeout,
		MaxRedeliveries: cfg.MaxRedeliveries,
	}, logger)

	gate := admission.NewController(admission.Options{
		DataDir:      cfg.DataDir,
		MinFreeMB:    cfg.MinFreeSpaceMB,
		PollInterval: cfg.DrainPollInterval,
		Exit:         opts.Exit,
	}, opts.Probe, intake, tracker, logger)

	if gate.Check(ctx) == admission.Halt {
		return admission.ExitCodeCapacity
	}

	if _, err := intake.Recover(ctx); err != nil {
		logger.Error("recover unacknowledged messages", "error", err)
		return ExitFailure
	}

	router := dispatch.NewRouter()
	for kind, e := range opts.Executors {
		router.Register(kind, e)
	}
	if kinds := router.Kinds(); len(kinds) == 0 {
		logger.Warn("no executors configured, orders will fail and be dead-lettered")
	} else {
		logger.Info("executors registered", "kinds", kinds)
	}

	loop := consumer.NewLoop(consumer.Deps{
		Admission: gate,
		Tracker:   tracker,
		Liveness:  liveness.NewRecorder(opts.Fs, cfg.DataDir, logger),
		Router:    router,
		Publisher: queue.NewPublisher(opts.Redis, cfg.ResponseQueue),
		History:   db,
		Logger:    logger,
	})

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	srv := api.NewServer(cfg.ListenAddr, db, intake, tracker, logger)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Run(runCtx) }()

	go gate.Monitor(runCtx, cfg.SpaceCheckInterval)

	// In-flight work is never cancelled, so the consumer does not see ctx.
	consumed := make(chan struct{})
	go func() {
		intake.Run(context.WithoutCancel(ctx), loop)
		close(consumed)
	}()

	code := ExitOK
	select {
	case sig := <-signals:
		logger.Info("received signal, draining", "signal", sig.String())
	case err := <-srvErr:
		logger.Error("status server failed, draining", "error", err)
		code = ExitFailure
		srvErr = nil
	case <-ctx.Done():
		logger.Info("context done, draining")
	}

	drainCtx, interrupt := context.WithCancel(context.WithoutCancel(ctx))
	defer interrupt()
	drained := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-signals:
				logger.Warn("signal received during drain, ignoring", "signal", sig.String())
				interrupt()
			case <-drained:
				return
			}
		}
	}()

	drain.NewCoordinator(tracker, intake, logger, cfg.DrainPollInterval).BeginShutdown(drainCtx)
	close(drained)
	<-consumed

	stopRun()
	if srvErr != nil {
		if err := <-srvErr; err != nil {
			logger.Error("status server shutdown", "error", err)
			code = ExitFailure
		}
	}

	logger.Info("inductor: stopped", "exit_code", code)
	return code
}
