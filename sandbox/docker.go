package sandbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// containerCodeDir is where the workspace is mounted inside a container.
	containerCodeDir = "/code"
	// containerScratchDir is the tmpfs that receives compiled artifacts.
	containerScratchDir = "/tmp"

	containerPrefix = "codejudge-"
	inputFileName   = "input.txt"

	// compileFailedExitCode is returned by the container shell line when
	// the compile step fails, separating compiler errors from program exits.
	compileFailedExitCode = 86

	janitorTimeout = 15 * time.Second
)

// ContainerPolicy holds the isolation limits applied to every container.
type ContainerPolicy struct {
	Runtime   string
	MemoryMB  int
	CPUs      float64
	PidsLimit int
	TmpfsMB   int
	User      string
}

// DefaultContainerPolicy returns the limits used when none are configured.
func DefaultContainerPolicy() ContainerPolicy {
	return ContainerPolicy{
		Runtime:   "docker",
		MemoryMB:  128,
		CPUs:      0.5,
		PidsLimit: 50,
		TmpfsMB:   64,
	}
}

// ContainerJanitor force-removes containers left behind by a killed client.
type ContainerJanitor interface {
	RemoveContainer(ctx context.Context, name string) error
}

// DockerExecutor implements SandboxExecutor by running each submission in a
// throwaway container with no network, a read-only root filesystem, and
// capped memory, CPU and process count.
type DockerExecutor struct {
	logger     *zap.Logger
	languages  *LanguageTable
	workspaces *WorkspaceManager
	cmdRunner  CommandRunner
	janitor    ContainerJanitor
	policy     ContainerPolicy
	timeout    time.Duration
}

// DockerExecutorOption defines a functional option for DockerExecutor
type DockerExecutorOption func(*DockerExecutor)

// WithDockerCommandRunner sets the CommandRunner for DockerExecutor
func WithDockerCommandRunner(cmdRunner CommandRunner) DockerExecutorOption {
	return func(d *DockerExecutor) {
		d.cmdRunner = cmdRunner
	}
}

// WithDockerWorkspaces sets the WorkspaceManager for DockerExecutor
func WithDockerWorkspaces(workspaces *WorkspaceManager) DockerExecutorOption {
	return func(d *DockerExecutor) {
		d.workspaces = workspaces
	}
}

// WithDockerJanitor sets the ContainerJanitor for DockerExecutor
func WithDockerJanitor(janitor ContainerJanitor) DockerExecutorOption {
	return func(d *DockerExecutor) {
		d.janitor = janitor
	}
}

// WithDockerPolicy sets the container limits for DockerExecutor
func WithDockerPolicy(policy ContainerPolicy) DockerExecutorOption {
	return func(d *DockerExecutor) {
		d.policy = policy
	}
}

// WithDockerTimeout sets the wall-clock budget of one container run
func WithDockerTimeout(timeout time.Duration) DockerExecutorOption {
	return func(d *DockerExecutor) {
		d.timeout = timeout
	}
}

// NewDockerExecutor creates a DockerExecutor with default implementations and optional overrides
func NewDockerExecutor(logger *zap.Logger, languages *LanguageTable, opts ...DockerExecutorOption) *DockerExecutor {
	executor := &DockerExecutor{
		logger:    logger,
		languages: languages,
		policy:    DefaultContainerPolicy(),
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
	if executor.janitor == nil {
		executor.janitor = NewCLIJanitor(executor.policy.Runtime, executor.cmdRunner)
	}

	return executor
}

// Execute mounts a fresh workspace read-only into a container of the
// language image and runs compile and run steps in one shell.
func (d *DockerExecutor) Execute(ctx context.Context, language, code, input string) (string, error) {
	profile, err := d.languages.Resolve(language)
	if err != nil {
		return "", err
	}
	if profile.Image == "" {
		return "", fmt.Errorf("%w: no container image for %s", ErrUnsupportedLanguage, profile.ID)
	}
	sourceName, err := profile.SourceFileName(code)
	if err != nil {
		return "", err
	}

	var output string
	err = d.workspaces.With(func(ws *Workspace) error {
		if _, writeErr := ws.WriteFile(sourceName, []byte(code)); writeErr != nil {
			return writeErr
		}

		stdin := programInput(input)
		if stdin != "" {
			if _, writeErr := ws.WriteFile(inputFileName, []byte(stdin)); writeErr != nil {
				return writeErr
			}
		}

		name := containerPrefix + uuid.NewString()
		args := buildRunArgs(d.policy, name, ws.Dir(), profile.Image, containerShellLine(profile, sourceName, stdin != ""))

		d.logger.Debug("starting container",
			zap.String("language", profile.ID),
			zap.String("container", name),
			zap.String("image", profile.Image))

		res, runErr := d.cmdRunner.RunCommand(ctx, Command{
			Args:    args,
			Timeout: d.timeout,
		})
		if runErr != nil {
			return d.classify(ctx, name, profile, res, runErr)
		}

		output = res.Output
		return nil
	})
	if err != nil {
		return "", err
	}

	return output, nil
}

func (d *DockerExecutor) classify(ctx context.Context, name string, profile LanguageProfile, res CommandResult, err error) error {
	if errors.Is(err, ErrExecutionTimeout) || ctx.Err() != nil {
		// Killing the client does not stop the container itself.
		d.removeContainer(name)
		return err
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code == compileFailedExitCode && profile.Compiled() {
		return &CompileError{Output: res.Output}
	}

	return err
}

func (d *DockerExecutor) removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), janitorTimeout)
	defer cancel()

	if err := d.janitor.RemoveContainer(ctx, name); err != nil {
		d.logger.Warn("failed to remove abandoned container", zap.String("container", name), zap.Error(err))
		return
	}
	d.logger.Info("removed abandoned container", zap.String("container", name))
}

// containerShellLine builds the sh -c payload for one submission. Compiled
// languages write their artifacts to the tmpfs and exit with
// compileFailedExitCode when the compiler fails.
func containerShellLine(profile LanguageProfile, sourceName string, hasInput bool) string {
	paths := TemplatePaths{
		Source: shellQuote(containerCodeDir + "/" + sourceName),
		Output: shellQuote(containerScratchDir),
		Class:  shellQuote(stemName(sourceName)),
	}

	run := paths.Expand(profile.RunCmd)
	if hasInput {
		run += " < " + shellQuote(containerCodeDir+"/"+inputFileName)
	}
	if !profile.Compiled() {
		return run
	}

	return paths.Expand(profile.CompileCmd) + " || exit " + strconv.Itoa(compileFailedExitCode) + "; " + run
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./:=@%+,-]+$`)

// shellQuote single-quotes s unless it is made only of characters sh
// leaves alone.
func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// buildRunArgs assembles the full container runtime invocation.
func buildRunArgs(policy ContainerPolicy, name, workspaceDir, image, shellLine string) []string {
	args := []string{
		policy.Runtime, "run",
		"--name", name,
		"--rm",
		"--network=none",
		fmt.Sprintf("--memory=%dm", policy.MemoryMB),
		"--cpus=" + strconv.FormatFloat(policy.CPUs, 'f', -1, 64),
		fmt.Sprintf("--pids-limit=%d", policy.PidsLimit),
		"--read-only",
		fmt.Sprintf("--tmpfs=%s:rw,exec,size=%dm", containerScratchDir, policy.TmpfsMB),
		"-v", workspaceDir + ":" + containerCodeDir + ":ro",
		"--workdir", containerCodeDir,
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
	}
	if policy.User != "" {
		args = append(args, "--user", policy.User)
	}

	return append(args, image, "sh", "-c", shellLine)
}
