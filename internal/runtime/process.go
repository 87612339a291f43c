package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"droplet/pkg/config"
	"droplet/pkg/runtime"
)

// ProcessRuntime runs the service as a child process of droplet.
type ProcessRuntime struct {
	stdout io.Writer
	stderr io.Writer
}

// NewProcessRuntime creates a ProcessRuntime whose children write to stdout and stderr.
func NewProcessRuntime(stdout, stderr io.Writer) *ProcessRuntime {
	return &ProcessRuntime{
		stdout: stdout,
		stderr: stderr,
	}
}

// Start spawns the configured command in the workspace.
func (p *ProcessRuntime) Start(ctx context.Context, ws *config.Workspace) (runtime.ServiceHandle, error) {
	svc := ws.Config.Service
	if len(svc.Command) == 0 {
		return nil, fmt.Errorf("no service command configured")
	}

	dir := ws.Path(svc.Workdir)
	cmd := exec.Command(svc.Command[0], svc.Command[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), svc.Env...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s in %s: %w", svc.Command[0], dir, err)
	}

	slog.Info("Service process started", "pid", cmd.Process.Pid, "command", svc.Command, "dir", dir)
	return &processHandle{cmd: cmd}, nil
}

// processHandle owns a started child process.
type processHandle struct {
	cmd *exec.Cmd
}

func (h *processHandle) ID() string {
	return "pid " + strconv.Itoa(h.cmd.Process.Pid)
}

// Wait blocks until the process exits. Exiting non-zero or being killed is
// reported through the status, not as an error.
func (h *processHandle) Wait() (runtime.ExitStatus, error) {
	err := h.cmd.Wait()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return runtime.ExitStatus{}, fmt.Errorf("failed waiting for %s: %w", h.ID(), err)
	}

	status := exitStatus(h.cmd.ProcessState)
	slog.Info("Service process exited", "pid", h.cmd.Process.Pid, "code", status.CodeString(), "signal", status.Signal)
	return status, nil
}

func exitStatus(state *os.ProcessState) runtime.ExitStatus {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return runtime.Signaled(ws.Signal().String())
	}
	if code := state.ExitCode(); code >= 0 {
		return runtime.Exited(code)
	}
	return runtime.ExitStatus{}
}
