package sandbox

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"go.uber.org/zap"
)

// dockerAPI is the subset of the docker engine client used by DaemonJanitor.
type dockerAPI interface {
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
}

// DaemonJanitor talks to the docker engine API directly. It removes
// orphaned containers and pulls missing language images.
type DaemonJanitor struct {
	logger *zap.Logger
	api    dockerAPI
}

// NewDaemonJanitor connects to the engine configured by the DOCKER_HOST
// family of environment variables.
func NewDaemonJanitor(logger *zap.Logger) (*DaemonJanitor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DaemonJanitor{logger: logger, api: cli}, nil
}

// RemoveContainer force-removes a container by name. A container that is
// already gone is not an error.
func (j *DaemonJanitor) RemoveContainer(ctx context.Context, name string) error {
	err := j.api.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// EnsureImages pulls every image not yet present locally.
func (j *DaemonJanitor) EnsureImages(ctx context.Context, images []string) error {
	for _, ref := range images {
		_, err := j.api.ImageInspect(ctx, ref)
		if err == nil {
			j.logger.Debug("image already present", zap.String("image", ref))
			continue
		}
		if !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to inspect image %s: %w", ref, err)
		}

		j.logger.Info("pulling image", zap.String("image", ref))
		rc, err := j.api.ImagePull(ctx, ref, image.PullOptions{})
		if err != nil {
			return fmt.Errorf("failed to pull image %s: %w", ref, err)
		}
		// the pull only completes once the progress stream is drained
		_, copyErr := io.Copy(io.Discard, rc)
		closeErr := rc.Close()
		if copyErr != nil {
			return fmt.Errorf("failed to pull image %s: %w", ref, copyErr)
		}
		if closeErr != nil {
			return fmt.Errorf("failed to pull image %s: %w", ref, closeErr)
		}
		j.logger.Info("pulled image", zap.String("image", ref))
	}
	return nil
}

// CLIJanitor removes containers through the runtime CLI. It serves podman
// and hosts where the engine socket is not reachable from the server.
type CLIJanitor struct {
	runtime   string
	cmdRunner CommandRunner
}

// NewCLIJanitor creates a janitor invoking "<runtime> rm -f".
func NewCLIJanitor(runtime string, cmdRunner CommandRunner) *CLIJanitor {
	if runtime == "" {
		runtime = "docker"
	}
	return &CLIJanitor{runtime: runtime, cmdRunner: cmdRunner}
}

// RemoveContainer force-removes a container by name.
func (j *CLIJanitor) RemoveContainer(ctx context.Context, name string) error {
	_, err := j.cmdRunner.RunCommand(ctx, Command{
		Args:    []string{j.runtime, "rm", "-f", name},
		Timeout: janitorTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// UniqueImages returns the distinct images referenced by the table.
func UniqueImages(table *LanguageTable) []string {
	seen := make(map[string]struct{})
	var images []string
	for _, p := range table.Profiles() {
		if p.Image == "" {
			continue
		}
		if _, ok := seen[p.Image]; ok {
			continue
		}
		seen[p.Image] = struct{}{}
		images = append(images, p.Image)
	}
	return images
}
