package app

import (
	"context"
	"strings"

	dropleterrors "droplet/internal/errors"
)

// DNSStage implements the Stage interface for the DNS update.
// A failure is a warning: the service is still reachable by IP.
type DNSStage struct {
	updater DNSUpdater
}

// NewDNSStage creates a new DNS stage instance
func NewDNSStage(updater DNSUpdater) *DNSStage {
	return &DNSStage{updater: updater}
}

func (s *DNSStage) Name() string {
	return "dns"
}

func (s *DNSStage) Enabled(flags Flags) bool {
	return flags.DNSEnabled()
}

func (s *DNSStage) Execute(ctx context.Context, run *Run) Outcome {
	text, err := s.updater.Update(ctx, run.Workspace.Config)
	if err != nil {
		return Warning(dropleterrors.NewDNSError(
			"failed to update DNS record",
			"your service will only be accessible via your public IP address",
			err,
		))
	}

	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if line != "" {
			run.Console.PrintInfof("dns: %s", line)
		}
	}
	return Success()
}
