package runtime

import (
	"context"
	"strconv"

	"droplet/pkg/config"
)

// ExitStatus describes how a service terminated. Code is nil when the
// service did not exit normally, e.g. it was killed by a signal.
type ExitStatus struct {
	Code   *int
	Signal string
}

// Exited returns the status of a service that exited with code.
func Exited(code int) ExitStatus {
	return ExitStatus{Code: &code}
}

// Signaled returns the status of a service terminated by a signal.
func Signaled(signal string) ExitStatus {
	return ExitStatus{Signal: signal}
}

// CodeString renders the exit code, or "<none>" when there is none.
func (s ExitStatus) CodeString() string {
	if s.Code == nil {
		return "<none>"
	}
	return strconv.Itoa(*s.Code)
}

// ServiceHandle owns a started service until its exit status is observed.
type ServiceHandle interface {
	// ID identifies the process or container for logging.
	ID() string
	// Wait blocks until the service terminates and releases its resources.
	// A non-nil error means the exit status could not be observed; a service
	// that exits non-zero is not an error.
	Wait() (ExitStatus, error)
}

// ServiceRunner defines the contract for starting the configured service.
type ServiceRunner interface {
	Start(ctx context.Context, ws *config.Workspace) (ServiceHandle, error)
}
