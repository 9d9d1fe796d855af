package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

// Failure classes of one execution attempt. Match with errors.Is.
var (
	ErrInvalidSource       = errors.New("invalid source")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrCompileFailure      = errors.New("compilation failed")
	ErrExecutionTimeout    = errors.New("execution timed out")
	ErrNonZeroExit         = errors.New("process exited with non-zero code")
	ErrIOFailure           = errors.New("workspace i/o failure")
)

// CompileError carries the compiler diagnostics of a failed compile phase.
type CompileError struct {
	Output   string
	TimedOut bool
}

func (e *CompileError) Error() string {
	if e.TimedOut {
		return "compilation timed out"
	}
	if e.Output == "" {
		return "compilation failed"
	}
	return "compilation failed: " + e.Output
}

func (*CompileError) Is(target error) bool {
	return target == ErrCompileFailure
}

// ExitError reports a program that finished within its budget but exited
// with a non-zero status. Output holds whatever it printed before exiting.
type ExitError struct {
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("process exited with code %d", e.Code)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (*ExitError) Is(target error) bool {
	return target == ErrNonZeroExit
}

func invalidSource(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSource, fmt.Sprintf(format, args...))
}

func ioFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, op, err)
}
