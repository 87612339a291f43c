package runtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/mock"

	"droplet/pkg/config"
)

type mockContainerAPI struct {
	mock.Mock
}

func (m *mockContainerAPI) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, ref, options)
	if rc, ok := args.Get(0).(io.ReadCloser); ok {
		return rc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockContainerAPI) ContainerCreate(ctx context.Context, cfg *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	args := m.Called(ctx, cfg, hostConfig, networkingConfig, platform, containerName)
	return args.Get(0).(container.CreateResponse), args.Error(1)
}

func (m *mockContainerAPI) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return m.Called(ctx, containerID, options).Error(0)
}

func (m *mockContainerAPI) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	args := m.Called(ctx, containerID, condition)
	return args.Get(0).(chan container.WaitResponse), args.Get(1).(chan error)
}

func (m *mockContainerAPI) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, containerID, options)
	if rc, ok := args.Get(0).(io.ReadCloser); ok {
		return rc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockContainerAPI) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	return m.Called(ctx, containerID, options).Error(0)
}

func dockerWorkspace(keep, pull bool) *config.Workspace {
	return &config.Workspace{
		Dir: "/srv/minecraft",
		Config: &config.Config{
			Service: config.Service{
				Runtime: "docker",
				Command: []string{"./start.sh"},
				Env:     []string{"EULA=true"},
				Docker: config.Docker{
					Image: "itzg/minecraft-server:latest",
					Pull:  pull,
					Mount: "/data",
					Keep:  keep,
				},
			},
		},
	}
}

func multiplexedLogs(stdout, stderr string) io.ReadCloser {
	var buf bytes.Buffer
	stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout))
	stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr))
	return io.NopCloser(&buf)
}

func waitChannels(resp *container.WaitResponse, err error) (chan container.WaitResponse, chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if resp != nil {
		statusCh <- *resp
	}
	if err != nil {
		errCh <- err
	}
	return statusCh, errCh
}

func TestDockerRuntime_StartAndWait(t *testing.T) {
	api := new(mockContainerAPI)
	ctx := context.Background()
	ws := dockerWorkspace(false, true)

	api.On("ImagePull", ctx, "itzg/minecraft-server:latest", image.PullOptions{}).
		Return(io.NopCloser(strings.NewReader("pulling")), nil)
	api.On("ContainerCreate", ctx,
		mock.MatchedBy(func(cfg *container.Config) bool {
			return cfg.Image == "itzg/minecraft-server:latest" && cfg.WorkingDir == "/data" &&
				len(cfg.Cmd) == 1 && cfg.Cmd[0] == "./start.sh" && cfg.Env[0] == "EULA=true"
		}),
		mock.MatchedBy(func(hc *container.HostConfig) bool {
			return hc.NetworkMode == "host" && len(hc.Mounts) == 1 &&
				hc.Mounts[0].Type == mount.TypeBind &&
				hc.Mounts[0].Source == "/srv/minecraft" && hc.Mounts[0].Target == "/data"
		}),
		(*network.NetworkingConfig)(nil), (*ocispec.Platform)(nil), "").
		Return(container.CreateResponse{ID: "0123456789abcdef"}, nil)
	api.On("ContainerStart", ctx, "0123456789abcdef", container.StartOptions{}).Return(nil)

	statusCh, errCh := waitChannels(&container.WaitResponse{StatusCode: 3}, nil)
	api.On("ContainerWait", ctx, "0123456789abcdef", container.WaitConditionNotRunning).Return(statusCh, errCh)
	api.On("ContainerLogs", ctx, "0123456789abcdef", container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true}).
		Return(multiplexedLogs("server ready\n", "warn\n"), nil)
	api.On("ContainerRemove", ctx, "0123456789abcdef", container.RemoveOptions{Force: true}).Return(nil)

	var stdout, stderr bytes.Buffer
	d := newDockerRuntime(api, &stdout, &stderr)

	handle, err := d.Start(ctx, ws)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if handle.ID() != "container 0123456789ab" {
		t.Errorf("Expected short container ID, got %q", handle.ID())
	}

	status, err := handle.Wait()
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if status.Code == nil || *status.Code != 3 {
		t.Errorf("Expected exit code 3, got %s", status.CodeString())
	}
	if stdout.String() != "server ready\n" {
		t.Errorf("Expected container stdout, got %q", stdout.String())
	}
	if stderr.String() != "warn\n" {
		t.Errorf("Expected container stderr, got %q", stderr.String())
	}

	api.AssertExpectations(t)
}

func TestDockerRuntime_KeepSkipsRemove(t *testing.T) {
	api := new(mockContainerAPI)
	ctx := context.Background()

	api.On("ContainerCreate", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything, "").
		Return(container.CreateResponse{ID: "abc"}, nil)
	api.On("ContainerStart", ctx, "abc", container.StartOptions{}).Return(nil)
	statusCh, errCh := waitChannels(&container.WaitResponse{StatusCode: 0}, nil)
	api.On("ContainerWait", ctx, "abc", container.WaitConditionNotRunning).Return(statusCh, errCh)
	api.On("ContainerLogs", ctx, "abc", mock.Anything).Return(nil, errors.New("logs unavailable"))

	d := newDockerRuntime(api, io.Discard, io.Discard)
	handle, err := d.Start(ctx, dockerWorkspace(true, false))
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if _, err := handle.Wait(); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	api.AssertExpectations(t)
	api.AssertNotCalled(t, "ImagePull", mock.Anything, mock.Anything, mock.Anything)
	api.AssertNotCalled(t, "ContainerRemove", mock.Anything, mock.Anything, mock.Anything)
}

func TestDockerRuntime_StartFailureRemovesContainer(t *testing.T) {
	api := new(mockContainerAPI)
	ctx := context.Background()

	api.On("ContainerCreate", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything, "").
		Return(container.CreateResponse{ID: "abc"}, nil)
	api.On("ContainerStart", ctx, "abc", container.StartOptions{}).Return(errors.New("port in use"))
	api.On("ContainerRemove", ctx, "abc", container.RemoveOptions{Force: true}).Return(nil)

	d := newDockerRuntime(api, io.Discard, io.Discard)
	_, err := d.Start(ctx, dockerWorkspace(false, false))
	if err == nil {
		t.Fatal("Expected start error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to start container") {
		t.Errorf("Unexpected error: %v", err)
	}

	api.AssertExpectations(t)
}

func TestDockerRuntime_PullFailure(t *testing.T) {
	api := new(mockContainerAPI)
	ctx := context.Background()

	api.On("ImagePull", ctx, "itzg/minecraft-server:latest", image.PullOptions{}).
		Return(nil, errors.New("manifest unknown"))

	d := newDockerRuntime(api, io.Discard, io.Discard)
	_, err := d.Start(ctx, dockerWorkspace(false, true))
	if err == nil {
		t.Fatal("Expected pull error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to pull image itzg/minecraft-server:latest") {
		t.Errorf("Unexpected error: %v", err)
	}

	api.AssertNotCalled(t, "ContainerCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDockerRuntime_WaitFailure(t *testing.T) {
	api := new(mockContainerAPI)
	ctx := context.Background()

	api.On("ContainerCreate", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything, "").
		Return(container.CreateResponse{ID: "abc"}, nil)
	api.On("ContainerStart", ctx, "abc", container.StartOptions{}).Return(nil)
	statusCh, errCh := waitChannels(nil, errors.New("daemon went away"))
	api.On("ContainerWait", ctx, "abc", container.WaitConditionNotRunning).Return(statusCh, errCh)
	api.On("ContainerLogs", ctx, "abc", mock.Anything).Return(multiplexedLogs("", ""), nil)

	d := newDockerRuntime(api, io.Discard, io.Discard)
	handle, err := d.Start(ctx, dockerWorkspace(false, false))
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	_, err = handle.Wait()
	if err == nil {
		t.Fatal("Expected wait error, got nil")
	}
	if !strings.Contains(err.Error(), "daemon went away") {
		t.Errorf("Unexpected error: %v", err)
	}
}

// signalWriter records writes and closes written on the first one.
type signalWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	once    sync.Once
	written chan struct{}
}

func (w *signalWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(func() { close(w.written) })
	return w.buf.Write(p)
}

func (w *signalWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestDockerRuntime_StreamsLogsWhileRunning(t *testing.T) {
	api := new(mockContainerAPI)
	ctx := context.Background()

	logReader, logWriter := io.Pipe()
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)

	api.On("ContainerCreate", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything, "").
		Return(container.CreateResponse{ID: "abc"}, nil)
	api.On("ContainerStart", ctx, "abc", container.StartOptions{}).Return(nil)
	api.On("ContainerWait", ctx, "abc", container.WaitConditionNotRunning).Return(statusCh, errCh)
	api.On("ContainerLogs", ctx, "abc", container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true}).
		Return(logReader, nil)
	api.On("ContainerRemove", ctx, "abc", container.RemoveOptions{Force: true}).Return(nil)

	stdout := &signalWriter{written: make(chan struct{})}
	d := newDockerRuntime(api, stdout, io.Discard)
	handle, err := d.Start(ctx, dockerWorkspace(false, false))
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	type result struct {
		code *int
		err  error
	}
	waited := make(chan result, 1)
	go func() {
		status, err := handle.Wait()
		waited <- result{code: status.Code, err: err}
	}()

	go stdcopy.NewStdWriter(logWriter, stdcopy.Stdout).Write([]byte("server ready\n"))

	select {
	case <-stdout.written:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected container output before the container exited")
	}

	statusCh <- container.WaitResponse{StatusCode: 0}
	logWriter.Close()

	select {
	case res := <-waited:
		if res.err != nil {
			t.Fatalf("Wait() failed: %v", res.err)
		}
		if res.code == nil || *res.code != 0 {
			t.Errorf("Expected exit code 0, got %v", res.code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait() did not return after the container exited")
	}

	if stdout.String() != "server ready\n" {
		t.Errorf("Expected streamed stdout, got %q", stdout.String())
	}
	api.AssertExpectations(t)
}
