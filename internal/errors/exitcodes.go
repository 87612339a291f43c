package errors

import "errors"

// Exit codes for droplet. Any non-zero code means a fatal stage failed.
const (
	ExitSuccess = 0 // Pipeline reached its end
	ExitFailure = 1 // Usage errors and anything unclassified
	ExitConfig  = 2 // Config path resolution or loading failed
	ExitSync    = 3 // Pull or push failed
	ExitService = 4 // Service could not be started or waited on
)

// ExitCode maps an orchestrator error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrConfigUnresolvable),
		errors.Is(err, ErrConfigNoParent),
		errors.Is(err, ErrWorkdirFailed),
		errors.Is(err, ErrConfigLoadFailed):
		return ExitConfig
	case errors.Is(err, ErrPullFailed), errors.Is(err, ErrPushFailed):
		return ExitSync
	case errors.Is(err, ErrServiceStartFailed), errors.Is(err, ErrServiceWaitFailed):
		return ExitService
	default:
		return ExitFailure
	}
}
