package sandbox

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"
)

// ExecutionRequest is one submission: source code, its language and
// optional program input. Immutable once received.
type ExecutionRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Input    string `json:"input,omitempty"`
}

// Validate checks the required fields are present and non-blank.
func (r ExecutionRequest) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return invalidSource("code cannot be empty")
	}
	if strings.TrimSpace(r.Language) == "" {
		return invalidSource("language cannot be empty")
	}
	return nil
}

// ExecutionResult is the verdict of one execution attempt. Output is
// meaningful when Success is set, Error otherwise.
type ExecutionResult struct {
	Success             bool
	Output              string
	Error               string
	ExecutionTimeMillis int64
	CompletedAt         time.Time
}

type executionResultJSON struct {
	Success             bool      `json:"success"`
	Output              *string   `json:"output"`
	Error               *string   `json:"error"`
	ExecutionTimeMillis int64     `json:"executionTimeMillis"`
	Timestamp           time.Time `json:"timestamp"`
}

// MarshalJSON renders the unused side of output/error as null.
func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	out := executionResultJSON{
		Success:             r.Success,
		ExecutionTimeMillis: r.ExecutionTimeMillis,
		Timestamp:           r.CompletedAt,
	}
	if r.Success {
		out.Output = &r.Output
	} else {
		out.Error = &r.Error
	}
	return json.Marshal(out)
}

// Succeeded builds a successful result.
func Succeeded(output string, elapsed time.Duration) ExecutionResult {
	return ExecutionResult{
		Success:             true,
		Output:              output,
		ExecutionTimeMillis: elapsed.Milliseconds(),
		CompletedAt:         time.Now(),
	}
}

// Failed builds a failed result. elapsed is zero when nothing ran.
func Failed(message string, elapsed time.Duration) ExecutionResult {
	return ExecutionResult{
		Success:             false,
		Error:               message,
		ExecutionTimeMillis: elapsed.Milliseconds(),
		CompletedAt:         time.Now(),
	}
}

// SandboxExecutor is one execution backend. Implementations compile (when
// the language needs it) and run code, returning the captured output.
type SandboxExecutor interface {
	Execute(ctx context.Context, language, code, input string) (string, error)
}

// Command is a single process invocation handed to a CommandRunner.
type Command struct {
	Args    []string
	Dir     string
	Stdin   string
	Timeout time.Duration
}

// CommandResult is the merged stdout/stderr of a finished process.
type CommandResult struct {
	Output    string
	ExitCode  int
	Truncated bool
	Duration  time.Duration
}

// CommandRunner spawns and supervises processes.
type CommandRunner interface {
	RunCommand(ctx context.Context, cmd Command) (CommandResult, error)
}

// FileSystem defines the file system operations used for workspaces
type FileSystem interface {
	Mkdir(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) Mkdir(path string, perm os.FileMode) error {
	if err := os.Mkdir(path, perm); err != nil {
		return err
	}
	// Mkdir is subject to umask; containers running as another user need
	// the exact mode.
	return os.Chmod(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// File permission and size constants
const (
	DirPermission  = 0o755
	FilePermission = 0o644
	BytesPerKB     = 1024
)
