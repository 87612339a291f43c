package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"droplet/pkg/config"
	"droplet/pkg/runtime"
)

// logDrainTimeout bounds how long Wait waits for buffered log output once the
// container has stopped.
var logDrainTimeout = 5 * time.Second

// containerAPI is the subset of the Docker client the runtime uses.
type containerAPI interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerRuntime runs the service as a container using the Docker client.
type DockerRuntime struct {
	client containerAPI
	stdout io.Writer
	stderr io.Writer
}

// NewDockerRuntime creates a new DockerRuntime instance using client.FromEnv.
func NewDockerRuntime(stdout, stderr io.Writer) (*DockerRuntime, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// Check if Docker daemon is accessible
	if _, err := dockerClient.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect to Docker daemon: %w", err)
	}

	return newDockerRuntime(dockerClient, stdout, stderr), nil
}

func newDockerRuntime(api containerAPI, stdout, stderr io.Writer) *DockerRuntime {
	return &DockerRuntime{
		client: api,
		stdout: stdout,
		stderr: stderr,
	}
}

// Start creates and starts the service container with the workspace bound at
// the configured mount point.
func (d *DockerRuntime) Start(ctx context.Context, ws *config.Workspace) (runtime.ServiceHandle, error) {
	svc := ws.Config.Service
	dc := svc.Docker

	if dc.Pull {
		if err := d.pullImage(ctx, dc.Image); err != nil {
			return nil, err
		}
	}

	containerConfig := &container.Config{
		Image:      dc.Image,
		Env:        svc.Env,
		WorkingDir: dc.Mount,
	}
	// An empty command keeps the image's default CMD.
	if len(svc.Command) > 0 {
		containerConfig.Cmd = svc.Command
	}

	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode("host"),
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: ws.Dir,
				Target: dc.Mount,
			},
		},
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container from %s: %w", dc.Image, err)
	}

	containerID := resp.ID

	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		// Clean up on start failure
		if removeErr := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); removeErr != nil {
			slog.Error("Failed to remove container after start failure", "containerID", containerID, "error", removeErr)
		}
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	slog.Info("Service container started", "containerID", containerID, "image", dc.Image)
	return &containerHandle{
		runtime:     d,
		ctx:         ctx,
		containerID: containerID,
		keep:        dc.Keep,
	}, nil
}

// pullImage pulls a Docker image, discarding the progress stream.
func (d *DockerRuntime) pullImage(ctx context.Context, imageName string) error {
	slog.Info("Pulling Docker image", "image", imageName)

	reader, err := d.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to stream image pull output: %w", err)
	}

	slog.Info("Successfully pulled Docker image", "image", imageName)
	return nil
}

// containerHandle owns a started container until it has been waited on and removed.
type containerHandle struct {
	runtime     *DockerRuntime
	ctx         context.Context
	containerID string
	keep        bool
}

func (h *containerHandle) ID() string {
	return "container " + shortID(h.containerID)
}

// Wait follows the container's logs to the runtime's writers, blocks until
// the container stops and removes it unless it is kept.
func (h *containerHandle) Wait() (runtime.ExitStatus, error) {
	api := h.runtime.client
	drain := h.followLogs()

	statusCh, errCh := api.ContainerWait(h.ctx, h.containerID, container.WaitConditionNotRunning)

	var code int64
	var waitErr error
	select {
	case err := <-errCh:
		waitErr = fmt.Errorf("failed waiting for %s: %w", h.ID(), err)
	case resp := <-statusCh:
		if resp.Error != nil && resp.Error.Message != "" {
			waitErr = fmt.Errorf("failed waiting for %s: %s", h.ID(), resp.Error.Message)
		}
		code = resp.StatusCode
	}

	drain()
	if waitErr != nil {
		return runtime.ExitStatus{}, waitErr
	}

	if !h.keep {
		if err := api.ContainerRemove(h.ctx, h.containerID, container.RemoveOptions{Force: true}); err != nil {
			slog.Error("Failed to remove container", "containerID", h.containerID, "error", err)
		}
	}

	slog.Info("Service container exited", "containerID", h.containerID, "code", code)
	return runtime.Exited(int(code)), nil
}

// followLogs streams the container's output while it runs. The returned
// func blocks until the stream has ended, closing it after logDrainTimeout.
func (h *containerHandle) followLogs() func() {
	logs, err := h.runtime.client.ContainerLogs(h.ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		slog.Warn("Failed to get container logs", "containerID", h.containerID, "error", err)
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := stdcopy.StdCopy(h.runtime.stdout, h.runtime.stderr, logs); err != nil {
			slog.Debug("Container log stream ended", "containerID", h.containerID, "error", err)
		}
	}()

	return func() {
		select {
		case <-done:
		case <-time.After(logDrainTimeout):
			slog.Warn("Container log stream still open after exit, closing it", "containerID", h.containerID)
		}
		logs.Close()
		<-done
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
