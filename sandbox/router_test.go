package sandbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// executorFunc adapts a function to SandboxExecutor
type executorFunc func(ctx context.Context, language, code, input string) (string, error)

func (f executorFunc) Execute(ctx context.Context, language, code, input string) (string, error) {
	return f(ctx, language, code, input)
}

func TestRouterExecute(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Success", func(t *testing.T) {
		var got [3]string
		router := NewRouter(logger, "direct", executorFunc(func(_ context.Context, language, code, input string) (string, error) {
			got = [3]string{language, code, input}
			time.Sleep(5 * time.Millisecond)
			return "Hello", nil
		}))

		res := router.Execute(context.Background(), ExecutionRequest{Code: "print('Hello')", Language: "python", Input: "x"})
		assert.True(t, res.Success)
		assert.Equal(t, "Hello", res.Output)
		assert.Empty(t, res.Error)
		assert.GreaterOrEqual(t, res.ExecutionTimeMillis, int64(5))
		assert.False(t, res.CompletedAt.IsZero())
		assert.Equal(t, [3]string{"python", "print('Hello')", "x"}, got)
	})

	t.Run("BackendError", func(t *testing.T) {
		router := NewRouter(logger, "docker", executorFunc(func(context.Context, string, string, string) (string, error) {
			return "", &CompileError{Output: "expected ';'"}
		}))

		res := router.Execute(context.Background(), ExecutionRequest{Code: "int main(", Language: "c"})
		assert.False(t, res.Success)
		assert.Equal(t, "Execution error: compilation failed: expected ';'", res.Error)
		assert.Empty(t, res.Output)
	})

	t.Run("Timeout", func(t *testing.T) {
		router := NewRouter(logger, "direct", executorFunc(func(context.Context, string, string, string) (string, error) {
			return "", ErrExecutionTimeout
		}))

		res := router.Execute(context.Background(), ExecutionRequest{Code: "while True: pass", Language: "python"})
		assert.False(t, res.Success)
		assert.Equal(t, "Execution error: execution timed out", res.Error)
	})

	t.Run("BlankFieldsSkipBackend", func(t *testing.T) {
		var calls atomic.Int32
		router := NewRouter(logger, "direct", executorFunc(func(context.Context, string, string, string) (string, error) {
			calls.Add(1)
			return "", nil
		}))

		res := router.Execute(context.Background(), ExecutionRequest{Code: "   ", Language: "python"})
		assert.False(t, res.Success)
		assert.Equal(t, "Execution error: invalid source: code cannot be empty", res.Error)
		assert.Equal(t, int64(0), res.ExecutionTimeMillis)

		res = router.Execute(context.Background(), ExecutionRequest{Code: "print(1)"})
		assert.Equal(t, "Execution error: invalid source: language cannot be empty", res.Error)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("PanicIsRecovered", func(t *testing.T) {
		router := NewRouter(logger, "direct", executorFunc(func(context.Context, string, string, string) (string, error) {
			panic("nil map write")
		}))

		res := router.Execute(context.Background(), ExecutionRequest{Code: "print(1)", Language: "python"})
		assert.False(t, res.Success)
		assert.Equal(t, "Execution error: internal error", res.Error)
	})
}

func TestRouterMode(t *testing.T) {
	router := NewRouter(zaptest.NewLogger(t), "docker", executorFunc(func(context.Context, string, string, string) (string, error) {
		return "", nil
	}))
	assert.Equal(t, "docker", router.CurrentMode())
}

func TestRouterConcurrencyLimit(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	router := NewRouter(zaptest.NewLogger(t), "direct", executorFunc(func(context.Context, string, string, string) (string, error) {
		started <- struct{}{}
		<-release
		return "done", nil
	}), WithConcurrencyLimit(1))

	first := make(chan ExecutionResult, 1)
	go func() {
		first <- router.Execute(context.Background(), ExecutionRequest{Code: "a", Language: "python"})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	blocked := router.Execute(ctx, ExecutionRequest{Code: "b", Language: "python"})
	assert.False(t, blocked.Success)
	assert.Contains(t, blocked.Error, context.DeadlineExceeded.Error())

	close(release)
	res := <-first
	require.True(t, res.Success)
	assert.Equal(t, "done", res.Output)
}

func TestRouterUncappedByDefault(t *testing.T) {
	const parallel = 8
	var inFlight, peak atomic.Int32
	gate := make(chan struct{})

	router := NewRouter(zaptest.NewLogger(t), "direct", executorFunc(func(context.Context, string, string, string) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-gate
		inFlight.Add(-1)
		return "", nil
	}), WithConcurrencyLimit(0))

	done := make(chan struct{}, parallel)
	for i := 0; i < parallel; i++ {
		go func() {
			router.Execute(context.Background(), ExecutionRequest{Code: "x", Language: "python"})
			done <- struct{}{}
		}()
	}

	require.Eventually(t, func() bool { return inFlight.Load() == parallel }, 2*time.Second, 5*time.Millisecond)
	close(gate)
	for i := 0; i < parallel; i++ {
		<-done
	}
	assert.Equal(t, int32(parallel), peak.Load())
}

func TestRouterKeepsErrorDetail(t *testing.T) {
	router := NewRouter(zaptest.NewLogger(t), "direct", executorFunc(func(context.Context, string, string, string) (string, error) {
		return "", errors.Join(ErrIOFailure, errors.New("disk full"))
	}))

	res := router.Execute(context.Background(), ExecutionRequest{Code: "x", Language: "python"})
	assert.Contains(t, res.Error, "disk full")
}

func TestRouterIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	router := NewRouter(zaptest.NewLogger(t), "docker", executorFunc(func(runCtx context.Context, _, _, _ string) (string, error) {
		cancel()
		return "done", runCtx.Err()
	}))

	res := router.Execute(ctx, ExecutionRequest{Code: "x", Language: "python"})
	require.True(t, res.Success)
	assert.Equal(t, "done", res.Output)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
