package runtime

import (
	"context"
	"fmt"
	"io"

	"droplet/pkg/config"
	"droplet/pkg/runtime"
)

// Selector dispatches to the runtime named by service.runtime. The Docker
// runtime is created on first use so hosts without Docker can still run
// process services.
type Selector struct {
	process   runtime.ServiceRunner
	docker    runtime.ServiceRunner
	newDocker func() (runtime.ServiceRunner, error)
}

// NewSelector returns a Selector whose runtimes write service output to stdout and stderr.
func NewSelector(stdout, stderr io.Writer) *Selector {
	return &Selector{
		process: NewProcessRuntime(stdout, stderr),
		newDocker: func() (runtime.ServiceRunner, error) {
			return NewDockerRuntime(stdout, stderr)
		},
	}
}

// Start implements runtime.ServiceRunner.
func (s *Selector) Start(ctx context.Context, ws *config.Workspace) (runtime.ServiceHandle, error) {
	runner, err := s.runner(ws.Config.Service.Runtime)
	if err != nil {
		return nil, err
	}
	return runner.Start(ctx, ws)
}

func (s *Selector) runner(name string) (runtime.ServiceRunner, error) {
	switch name {
	case "", "process":
		return s.process, nil
	case "docker":
		if s.docker == nil {
			docker, err := s.newDocker()
			if err != nil {
				return nil, fmt.Errorf("docker runtime unavailable: %w", err)
			}
			s.docker = docker
		}
		return s.docker, nil
	default:
		return nil, fmt.Errorf("unsupported service runtime: %s", name)
	}
}
