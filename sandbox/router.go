package sandbox

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrorPrefix starts the message of every failed ExecutionResult.
const ErrorPrefix = "Execution error: "

var errInternal = errors.New("internal error")

// Router sends every request to the backend selected at start. It never
// returns an error: every failure becomes a failed ExecutionResult.
type Router struct {
	logger   *zap.Logger
	mode     string
	executor SandboxExecutor
	slots    *semaphore.Weighted
}

// RouterOption defines a functional option for Router
type RouterOption func(*Router)

// WithConcurrencyLimit caps the number of executions in flight. Zero or a
// negative limit leaves the router uncapped.
func WithConcurrencyLimit(limit int) RouterOption {
	return func(r *Router) {
		if limit > 0 {
			r.slots = semaphore.NewWeighted(int64(limit))
		} else {
			r.slots = nil
		}
	}
}

// NewRouter creates a Router for the given mode and backend.
func NewRouter(logger *zap.Logger, mode string, executor SandboxExecutor, opts ...RouterOption) *Router {
	r := &Router{
		logger:   logger,
		mode:     mode,
		executor: executor,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CurrentMode returns the execution mode fixed at start.
func (r *Router) CurrentMode() string {
	return r.mode
}

// Execute validates the request, runs it on the selected backend and
// measures wall-clock time around the backend call. Waiting for a slot
// honours ctx; the run itself does not.
func (r *Router) Execute(ctx context.Context, req ExecutionRequest) ExecutionResult {
	if err := req.Validate(); err != nil {
		return Failed(ErrorPrefix+err.Error(), 0)
	}

	if r.slots != nil {
		if err := r.slots.Acquire(ctx, 1); err != nil {
			return Failed(ErrorPrefix+err.Error(), 0)
		}
		defer r.slots.Release(1)
	}

	// A run ends at its own deadline, not when the caller goes away.
	start := time.Now()
	output, err := r.dispatch(context.WithoutCancel(ctx), req)
	elapsed := time.Since(start)

	if err != nil {
		r.logger.Info("execution failed",
			zap.String("mode", r.mode),
			zap.String("language", req.Language),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return Failed(ErrorPrefix+err.Error(), elapsed)
	}

	r.logger.Info("execution succeeded",
		zap.String("mode", r.mode),
		zap.String("language", req.Language),
		zap.Duration("duration", elapsed))
	return Succeeded(output, elapsed)
}

func (r *Router) dispatch(ctx context.Context, req ExecutionRequest) (output string, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("backend panicked",
				zap.String("mode", r.mode),
				zap.Any("panic", p),
				zap.Stack("stack"))
			output, err = "", errInternal
		}
	}()

	return r.executor.Execute(ctx, req.Language, req.Code, req.Input)
}
