package app

import (
	"context"

	"droplet/pkg/config"
)

// Flags are the invocation switches. They are fixed before the first stage runs.
type Flags struct {
	NoDNS  bool
	NoPull bool
	NoPush bool
	NoSync bool // Forces NoPull and NoPush
}

// DNSEnabled reports whether the DNS stage runs.
func (f Flags) DNSEnabled() bool {
	return !f.NoDNS
}

// PullEnabled reports whether the pre-run sync runs.
func (f Flags) PullEnabled() bool {
	return !f.NoPull && !f.NoSync
}

// PushEnabled reports whether the post-run sync runs.
func (f Flags) PushEnabled() bool {
	return !f.NoPush && !f.NoSync
}

// ConfigLoader reads the configuration file at an absolute path.
type ConfigLoader interface {
	Load(path string) (*config.Config, error)
}

// DNSUpdater points the configured record at this machine and describes what it did.
type DNSUpdater interface {
	Update(ctx context.Context, cfg *config.Config) (string, error)
}

// RepoSyncer synchronizes the workspace directory with its remote.
type RepoSyncer interface {
	Pull(ctx context.Context, ws *config.Workspace) error
	Push(ctx context.Context, ws *config.Workspace) error
}

// Stage represents a single stage in the droplet pipeline.
// Each stage implements this interface to provide a name, the flags it
// honors and its execution logic.
type Stage interface {
	Name() string
	Enabled(flags Flags) bool
	Execute(ctx context.Context, run *Run) Outcome
}
