// Package engine is the entry point shared by every boundary: it gates each
// submission through admission control before handing it to the router.
package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/isdmx/codejudge/ratelimit"
	"github.com/isdmx/codejudge/sandbox"
)

// ErrRateLimited is returned when the client has exhausted its bucket.
// No execution result exists in that case.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitMessage is shown to clients whose request was not admitted.
const RateLimitMessage = "Rate limit exceeded. Please wait before making another request."

// Executor runs admitted requests. *sandbox.Router implements it.
type Executor interface {
	Execute(ctx context.Context, req sandbox.ExecutionRequest) sandbox.ExecutionResult
	CurrentMode() string
}

// Engine combines admission control and execution.
type Engine struct {
	logger   *zap.Logger
	admitter ratelimit.Admitter
	executor Executor
}

// New creates an Engine
func New(logger *zap.Logger, admitter ratelimit.Admitter, executor Executor) *Engine {
	return &Engine{
		logger:   logger,
		admitter: admitter,
		executor: executor,
	}
}

// Submit admits and executes one request on behalf of clientID. A failure
// of the admission store itself lets the request through.
func (e *Engine) Submit(ctx context.Context, clientID string, req sandbox.ExecutionRequest) (sandbox.ExecutionResult, error) {
	admitted, err := e.admitter.TryAdmit(ctx, clientID)
	if err != nil {
		e.logger.Warn("admission store unavailable, admitting request",
			zap.String("client", clientID),
			zap.Error(err))
		admitted = true
	}
	if !admitted {
		e.logger.Info("admission denied", zap.String("client", clientID))
		return sandbox.ExecutionResult{}, ErrRateLimited
	}

	return e.executor.Execute(ctx, req), nil
}

// Mode returns the active execution mode.
func (e *Engine) Mode() string {
	return e.executor.CurrentMode()
}
