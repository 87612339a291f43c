package app

import (
	"context"

	dropleterrors "droplet/internal/errors"
)

// PullStage synchronizes the working tree before the service starts. A
// failure is fatal so the service never runs against a stale tree.
type PullStage struct {
	syncer RepoSyncer
}

// NewPullStage creates a new pre-run sync stage instance
func NewPullStage(syncer RepoSyncer) *PullStage {
	return &PullStage{syncer: syncer}
}

func (s *PullStage) Name() string {
	return "pull"
}

func (s *PullStage) Enabled(flags Flags) bool {
	return flags.PullEnabled()
}

func (s *PullStage) Execute(ctx context.Context, run *Run) Outcome {
	if err := s.syncer.Pull(ctx, run.Workspace); err != nil {
		return Fatal(dropleterrors.NewPullError("failed pulling changes from remote", err))
	}
	run.Console.PrintInfo("pulled changes from remote")
	return Success()
}

// PushStage publishes whatever the service left in the working tree, however
// the service exited.
type PushStage struct {
	syncer RepoSyncer
}

// NewPushStage creates a new post-run sync stage instance
func NewPushStage(syncer RepoSyncer) *PushStage {
	return &PushStage{syncer: syncer}
}

func (s *PushStage) Name() string {
	return "push"
}

func (s *PushStage) Enabled(flags Flags) bool {
	return flags.PushEnabled()
}

func (s *PushStage) Execute(ctx context.Context, run *Run) Outcome {
	if err := s.syncer.Push(ctx, run.Workspace); err != nil {
		return Fatal(dropleterrors.NewPushError("failed pushing changes to remote", err))
	}
	run.Console.PrintInfo("pushed changes to remote")
	return Success()
}
