package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/inductor/internal/model"
)

// Executor runs a request and returns the response fields. Implementations
// own any retry or idempotency semantics; the router never retries.
type Executor interface {
	Process(ctx context.Context, req model.Request, correlationID string) (model.Envelope, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req model.Request, correlationID string) (model.Envelope, error)

// Process implements Executor.
func (f ExecutorFunc) Process(ctx context.Context, req model.Request, correlationID string) (model.Envelope, error) {
	return f(ctx, req, correlationID)
}

// Router holds one executor per request kind.
type Router struct {
	mu        sync.RWMutex
	executors map[model.Kind]Executor
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		executors: make(map[model.Kind]Executor),
	}
}

// Register sets the executor for kind, replacing any previous one.
func (r *Router) Register(kind model.Kind, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[kind] = e
}

// Resolve returns the executor registered for kind.
func (r *Router) Resolve(kind model.Kind) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("no executor registered for %q", kind)
	}
	return e, nil
}

// Kinds returns the registered kinds, sorted for stable output.
func (r *Router) Kinds() []model.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]model.Kind, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Route hands req to its executor. Every failure, including a missing
// executor or a panic inside it, is wrapped in model.ErrExecutionFailure.
func (r *Router) Route(ctx context.Context, req model.Request, correlationID string) (env model.Envelope, err error) {
	e, err := r.Resolve(req.Kind())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrExecutionFailure, err)
	}

	defer func() {
		if p := recover(); p != nil {
			env = nil
			err = fmt.Errorf("%w: %s: panic: %v", model.ErrExecutionFailure, req.Kind(), p)
		}
	}()

	env, err = e.Process(ctx, req, correlationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrExecutionFailure, req.Kind(), err)
	}
	if env == nil {
		env = model.Envelope{}
	}
	return env, nil
}
