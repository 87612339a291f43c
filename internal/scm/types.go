package scm

import (
	"context"

	"droplet/pkg/config"
)

// RemoteResolver finds the URL for a sync remote that does not exist locally yet.
// Implementations may talk to a hosting provider and create the repository there.
type RemoteResolver interface {
	ResolveURL(ctx context.Context, cfg config.Sync) (string, error)
}
