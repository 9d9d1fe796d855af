package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

// LocalExecutor runs submissions directly on the host with the privileges
// of the server process. It enforces only the wall-clock timeout and the
// output cap; use DockerExecutor for untrusted code.
type LocalExecutor struct {
	logger     *zap.Logger
	languages  *LanguageTable
	workspaces *WorkspaceManager
	cmdRunner  CommandRunner
	timeout    time.Duration
}

// LocalExecutorOption defines a functional option for LocalExecutor
type LocalExecutorOption func(*LocalExecutor)

// WithLocalCommandRunner sets the CommandRunner for LocalExecutor
func WithLocalCommandRunner(cmdRunner CommandRunner) LocalExecutorOption {
	return func(l *LocalExecutor) {
		l.cmdRunner = cmdRunner
	}
}

// WithLocalWorkspaces sets the WorkspaceManager for LocalExecutor
func WithLocalWorkspaces(workspaces *WorkspaceManager) LocalExecutorOption {
	return func(l *LocalExecutor) {
		l.workspaces = workspaces
	}
}

// WithLocalTimeout sets the per-phase timeout for LocalExecutor
func WithLocalTimeout(timeout time.Duration) LocalExecutorOption {
	return func(l *LocalExecutor) {
		l.timeout = timeout
	}
}

// NewLocalExecutor creates a LocalExecutor with default implementations and optional overrides
func NewLocalExecutor(logger *zap.Logger, languages *LanguageTable, opts ...LocalExecutorOption) *LocalExecutor {
	executor := &LocalExecutor{
		logger:    logger,
		languages: languages,
		timeout:   DefaultTimeout,
	}

	for _, opt := range opts {
		opt(executor)
	}

	if executor.cmdRunner == nil {
		executor.cmdRunner = NewSupervisor(logger, DefaultMaxOutputBytes)
	}
	if executor.workspaces == nil {
		executor.workspaces = NewWorkspaceManager(logger, "", nil)
	}

	return executor
}

// Execute writes the code to a fresh workspace, compiles it when the
// language requires it and runs it with input on stdin.
func (l *LocalExecutor) Execute(ctx context.Context, language, code, input string) (string, error) {
	profile, err := l.languages.Resolve(language)
	if err != nil {
		return "", err
	}
	sourceName, err := profile.SourceFileName(code)
	if err != nil {
		return "", err
	}

	var output string
	err = l.workspaces.With(func(ws *Workspace) error {
		sourcePath, writeErr := ws.WriteFile(sourceName, []byte(code))
		if writeErr != nil {
			return writeErr
		}

		paths := TemplatePaths{
			Source: sourcePath,
			Output: ws.Dir(),
			Class:  stemName(sourceName),
		}

		if profile.Compiled() {
			if compileErr := l.compile(ctx, ws, profile, paths); compileErr != nil {
				return compileErr
			}
		}

		args, splitErr := splitCommand(profile.RunCmd, paths)
		if splitErr != nil {
			return splitErr
		}

		l.logger.Debug("running submission",
			zap.String("language", profile.ID),
			zap.Strings("args", args))

		res, runErr := l.cmdRunner.RunCommand(ctx, Command{
			Args:    args,
			Dir:     ws.Dir(),
			Stdin:   programInput(input),
			Timeout: l.timeout,
		})
		output = res.Output
		return runErr
	})
	if err != nil {
		return "", err
	}

	return output, nil
}

func (l *LocalExecutor) compile(ctx context.Context, ws *Workspace, profile LanguageProfile, paths TemplatePaths) error {
	args, err := splitCommand(profile.CompileCmd, paths)
	if err != nil {
		return err
	}

	l.logger.Debug("compiling submission",
		zap.String("language", profile.ID),
		zap.Strings("args", args))

	res, err := l.cmdRunner.RunCommand(ctx, Command{
		Args:    args,
		Dir:     ws.Dir(),
		Timeout: l.timeout,
	})
	return compileFailure(res, err)
}

// compileFailure maps the outcome of a compile phase to a CompileError.
func compileFailure(res CommandResult, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExecutionTimeout) {
		return &CompileError{TimedOut: true}
	}
	if errors.Is(err, ErrNonZeroExit) {
		return &CompileError{Output: res.Output}
	}
	return err
}

// splitCommand tokenizes a command template and expands placeholders per
// token, so paths containing spaces stay a single argument.
func splitCommand(tpl string, paths TemplatePaths) ([]string, error) {
	tokens, err := shlex.Split(tpl)
	if err != nil {
		return nil, fmt.Errorf("invalid command template %q: %w", tpl, err)
	}
	if len(tokens) == 0 {
		return nil, errors.New("empty command template")
	}
	for i, tok := range tokens {
		tokens[i] = paths.Expand(tok)
	}
	return tokens, nil
}

// programInput returns the stdin payload for a run. Blank input is treated
// as absent.
func programInput(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	return input
}
