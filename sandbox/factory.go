package sandbox

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
)

// NewLanguageTableFromConfig builds the dispatch table with the configured
// image overrides applied.
func NewLanguageTableFromConfig(cfg *config.Config) *LanguageTable {
	profiles := DefaultLanguages()
	images := make(map[string]string, len(profiles))
	for _, p := range profiles {
		images[p.ID] = cfg.Image(p.ID)
	}
	return NewLanguageTable(profiles, images)
}

// NewExecutor creates the backend selected by sandbox.mode
func NewExecutor(logger *zap.Logger, cfg *config.Config, languages *LanguageTable) SandboxExecutor {
	supervisor := NewSupervisor(logger, cfg.Sandbox.MaxOutputKB*BytesPerKB)
	workspaces := NewWorkspaceManager(logger, cfg.Sandbox.WorkRoot, nil)

	if !cfg.ContainerMode() {
		logger.Warn("direct execution mode: submissions run on the host without isolation")
		return NewLocalExecutor(logger, languages,
			WithLocalCommandRunner(supervisor),
			WithLocalWorkspaces(workspaces),
			WithLocalTimeout(cfg.GetTimeout()),
		)
	}

	policy := ContainerPolicy{
		Runtime:   cfg.Sandbox.Runtime,
		MemoryMB:  cfg.Sandbox.MemoryMB,
		CPUs:      cfg.Sandbox.CPUs,
		PidsLimit: cfg.Sandbox.PidsLimit,
		TmpfsMB:   cfg.Sandbox.TmpfsMB,
		User:      cfg.Sandbox.ContainerUser,
	}

	return NewDockerExecutor(logger, languages,
		WithDockerCommandRunner(supervisor),
		WithDockerWorkspaces(workspaces),
		WithDockerPolicy(policy),
		WithDockerJanitor(newJanitor(logger, policy.Runtime, supervisor)),
		WithDockerTimeout(cfg.GetTimeout()),
	)
}

// NewRouterFromConfig wires the configured backend behind a Router.
func NewRouterFromConfig(logger *zap.Logger, cfg *config.Config, languages *LanguageTable) *Router {
	mode := strings.ToLower(cfg.Sandbox.Mode)
	logger.Info("execution mode selected", zap.String("mode", mode))

	return NewRouter(logger, mode, NewExecutor(logger, cfg, languages),
		WithConcurrencyLimit(cfg.Sandbox.MaxConcurrent))
}

// PreloadImages pulls the language images missing from the local engine.
// It is a no-op unless the container backend runs on docker with
// sandbox.preload_images set.
func PreloadImages(ctx context.Context, logger *zap.Logger, cfg *config.Config, languages *LanguageTable) error {
	if !cfg.Sandbox.PreloadImages || !cfg.ContainerMode() || cfg.Sandbox.Runtime != "docker" {
		return nil
	}

	daemon, err := NewDaemonJanitor(logger)
	if err != nil {
		return err
	}
	return daemon.EnsureImages(ctx, UniqueImages(languages))
}

func newJanitor(logger *zap.Logger, runtime string, runner CommandRunner) ContainerJanitor {
	if runtime == "docker" {
		daemon, err := NewDaemonJanitor(logger)
		if err == nil {
			return daemon
		}
		logger.Warn("docker engine API unavailable, removing containers through the CLI", zap.Error(err))
	}
	return NewCLIJanitor(runtime, runner)
}
