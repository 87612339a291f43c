package app

import (
	"droplet/internal/dns"
	"droplet/internal/parser"
	"droplet/internal/runtime"
	"droplet/internal/scm"
	"droplet/internal/ui"
)

// NewDefault wires the orchestrator to the real collaborators: the viper
// config loader, the DigitalOcean DNS updater, the go-git syncer with GitLab
// remote resolution and the process/Docker runtime selector. Service output
// goes to the console's streams.
func NewDefault(console *ui.Console) *Orchestrator {
	return New(
		parser.Loader{},
		dns.NewUpdater(),
		scm.NewGitSyncer(scm.NewGitLabResolver()),
		runtime.NewSelector(console.Out(), console.ErrOut()),
		console,
	)
}
