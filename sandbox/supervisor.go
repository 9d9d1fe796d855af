package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout is the wall-clock budget of a single process.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxOutputBytes caps the captured output of one process.
	DefaultMaxOutputBytes = 1024 * BytesPerKB

	// waitDelay bounds how long Wait keeps draining pipes held open by
	// descendants after the process itself was killed.
	waitDelay = 2 * time.Second

	truncationMarker = "...[output truncated]"
)

// Supervisor is the CommandRunner that spawns real processes. Stdout and
// stderr are merged into one captured stream; the process group is killed
// when the timeout fires.
type Supervisor struct {
	logger         *zap.Logger
	maxOutputBytes int
}

// NewSupervisor creates a Supervisor capturing at most maxOutputBytes of
// output per process (unbounded when <= 0).
func NewSupervisor(logger *zap.Logger, maxOutputBytes int) *Supervisor {
	return &Supervisor{logger: logger, maxOutputBytes: maxOutputBytes}
}

// RunCommand runs cmd to completion. A non-zero exit returns the result
// together with an *ExitError; an expired timeout returns ErrExecutionTimeout.
func (s *Supervisor) RunCommand(ctx context.Context, c Command) (CommandResult, error) {
	if len(c.Args) == 0 {
		return CommandResult{}, errors.New("no command provided")
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Args[0], c.Args[1:]...) //nolint:gosec // running submitted programs is the purpose
	cmd.Dir = c.Dir
	if c.Stdin != "" {
		// exec copies stdin from its own goroutine and closes the pipe
		// afterwards, so output is drained while input is still being fed.
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	out := &cappedBuffer{limit: s.maxOutputBytes}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	res := CommandResult{
		Output:    collectLines(out.String()),
		Truncated: out.Truncated(),
		Duration:  time.Since(start),
	}
	if res.Truncated {
		res.Output += "\n" + truncationMarker
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		s.logger.Debug("process killed on timeout",
			zap.String("command", c.Args[0]),
			zap.Duration("timeout", c.Timeout))
		res.ExitCode = -1
		return res, fmt.Errorf("%w after %s", ErrExecutionTimeout, c.Timeout)
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{Code: res.ExitCode, Output: res.Output}
		}
		if errors.Is(err, exec.ErrWaitDelay) {
			// the process exited cleanly but a descendant kept the pipe open
			return res, nil
		}
		return res, fmt.Errorf("failed to run %s: %w", c.Args[0], err)
	}

	return res, nil
}

// collectLines normalizes captured output: lines are joined with "\n" and
// trailing whitespace is removed.
func collectLines(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), " \t\r\n")
}

// cappedBuffer keeps the first limit bytes written to it and silently drops
// the rest so the writer never fails the process.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       strings.Builder
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit <= 0 {
		b.buf.Write(p)
		return len(p), nil
	}
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
