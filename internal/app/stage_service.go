package app

import (
	"context"

	dropleterrors "droplet/internal/errors"
	"droplet/pkg/runtime"
)

// ServiceStage starts the service and blocks until it exits. The service's
// exit status is reported but never fails the stage.
type ServiceStage struct {
	runner runtime.ServiceRunner
}

// NewServiceStage creates a new service execution stage instance
func NewServiceStage(runner runtime.ServiceRunner) *ServiceStage {
	return &ServiceStage{runner: runner}
}

func (s *ServiceStage) Name() string {
	return "service"
}

func (s *ServiceStage) Enabled(Flags) bool {
	return true
}

func (s *ServiceStage) Execute(ctx context.Context, run *Run) Outcome {
	handle, err := s.runner.Start(ctx, run.Workspace)
	if err != nil {
		return Fatal(dropleterrors.NewServiceError(dropleterrors.ErrServiceStartFailed, "failed starting service", err))
	}
	run.Console.PrintInfo("service started")
	run.Logger.Info("Service started", "service", handle.ID())

	status, err := handle.Wait()
	if err != nil {
		return Fatal(dropleterrors.NewServiceError(dropleterrors.ErrServiceWaitFailed, "failed waiting for service process", err))
	}
	run.Exit = &status

	run.Console.PrintInfof("service exited with code %s", status.CodeString())
	if status.Signal != "" {
		run.Console.PrintInfof("service terminated by signal %s", status.Signal)
	}
	run.Logger.Info("Service exited", "service", handle.ID(), "code", status.CodeString(), "signal", status.Signal)
	return Success()
}
