package config

import (
	"path/filepath"
	"time"
)

// DefaultFileName is the configuration file looked up when no path is given.
const DefaultFileName = "droplet.toml"

// Config is the root object that holds the entire configuration for a droplet run.
// It's populated by parsing the droplet.toml file next to the service's state tree.
type Config struct {
	DNS     DNS     `mapstructure:"dns"`
	Sync    Sync    `mapstructure:"sync"`
	Service Service `mapstructure:"service"`
	Metrics Metrics `mapstructure:"metrics"`
}

// DNS configures the record kept pointed at this machine.
type DNS struct {
	Provider string        `mapstructure:"provider" validate:"omitempty,oneof=digitalocean"`
	Hostname string        `mapstructure:"hostname" validate:"omitempty,fqdn"`
	Domain   string        `mapstructure:"domain" validate:"omitempty,fqdn"`
	Token    string        `mapstructure:"token"`
	TTL      int           `mapstructure:"ttl" validate:"omitempty,min=30"`
	IP       string        `mapstructure:"ip" validate:"omitempty,ip"`
	IPSource string        `mapstructure:"ip_source" validate:"omitempty,url"`
	APIURL   string        `mapstructure:"api_url" validate:"omitempty,url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Retries  int           `mapstructure:"retries" validate:"min=0"`
}

// Sync configures the repository the working tree is synchronized with.
type Sync struct {
	Remote      string `mapstructure:"remote" validate:"required"`
	URL         string `mapstructure:"url"`
	Branch      string `mapstructure:"branch"`
	Token       string `mapstructure:"token"`
	Username    string `mapstructure:"username"`
	AuthorName  string `mapstructure:"author_name" validate:"required"`
	AuthorEmail string `mapstructure:"author_email" validate:"required"`
	Message     string `mapstructure:"message" validate:"required"`
	GitLab      GitLab `mapstructure:"gitlab"`
}

// GitLab configures resolution of the sync remote through the GitLab API.
type GitLab struct {
	URL             string `mapstructure:"url" validate:"omitempty,url"`
	Project         string `mapstructure:"project"`
	CreateIfMissing bool   `mapstructure:"create_if_missing"`
	Visibility      string `mapstructure:"visibility" validate:"omitempty,oneof=private internal public"`
}

// Service configures the long-running process droplet starts and waits on.
type Service struct {
	Runtime string   `mapstructure:"runtime" validate:"oneof=process docker"`
	Command []string `mapstructure:"command"`
	Env     []string `mapstructure:"env"`
	Workdir string   `mapstructure:"workdir"`
	Docker  Docker   `mapstructure:"docker"`
}

// Docker configures the container runtime for the service.
type Docker struct {
	Image string `mapstructure:"image"`
	Pull  bool   `mapstructure:"pull"`
	Mount string `mapstructure:"mount"`
	Keep  bool   `mapstructure:"keep"`
}

// Metrics configures the optional Prometheus textfile written after each run.
type Metrics struct {
	Textfile string `mapstructure:"textfile"`
}

// Workspace ties a loaded configuration to the directory it was loaded from.
// Every relative path droplet touches is resolved against Dir.
type Workspace struct {
	ConfigPath string
	Dir        string
	Config     *Config
}

// Path resolves p against the workspace directory unless it is already absolute.
func (w *Workspace) Path(p string) string {
	if p == "" {
		return w.Dir
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(w.Dir, p)
}
