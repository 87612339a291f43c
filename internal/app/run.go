package app

import (
	"log/slog"

	"droplet/internal/ui"
	"droplet/pkg/config"
	"droplet/pkg/runtime"
)

// Run is the in-memory context of one droplet invocation.
type Run struct {
	ID        string
	Flags     Flags
	Workspace *config.Workspace
	Console   *ui.Console
	Logger    *slog.Logger

	// Exit is set once the service's exit status has been observed.
	Exit *runtime.ExitStatus
}
