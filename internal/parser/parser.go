package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"droplet/pkg/config"
)

// EnvPrefix prefixes environment variables that override config keys,
// e.g. DROPLET_DNS_TOKEN for dns.token.
const EnvPrefix = "DROPLET"

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterStructValidation(validateService, config.Service{})
}

// Loader reads droplet configuration files.
type Loader struct{}

// Load implements the config loading contract used by the orchestrator.
func (Loader) Load(path string) (*config.Config, error) {
	return Parse(path)
}

// Parse reads and validates a droplet TOML file, returning the parsed Config or an error.
func Parse(filePath string) (*config.Config, error) {
	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", filePath)
	}

	// Configure Viper
	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetConfigType(configType(filePath))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Read the file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, formatValidationError(err)
	}

	return &cfg, nil
}

// setDefaults registers every key droplet reads. Keys must be known to viper
// for AutomaticEnv to apply to them during Unmarshal. List keys take
// comma-separated values from the environment, e.g.
// DROPLET_SERVICE_COMMAND="./server,--port,25565".
func setDefaults(v *viper.Viper) {
	v.SetDefault("dns.provider", "digitalocean")
	v.SetDefault("dns.hostname", "")
	v.SetDefault("dns.domain", "")
	v.SetDefault("dns.token", "")
	v.SetDefault("dns.ttl", 300)
	v.SetDefault("dns.ip", "")
	v.SetDefault("dns.ip_source", "http://169.254.169.254/metadata/v1/interfaces/public/0/ipv4/address")
	v.SetDefault("dns.api_url", "")
	v.SetDefault("dns.timeout", 30*time.Second)
	v.SetDefault("dns.retries", 3)

	v.SetDefault("sync.remote", "origin")
	v.SetDefault("sync.url", "")
	v.SetDefault("sync.branch", "")
	v.SetDefault("sync.token", "")
	v.SetDefault("sync.username", "oauth2")
	v.SetDefault("sync.author_name", "droplet")
	v.SetDefault("sync.author_email", "droplet@localhost")
	v.SetDefault("sync.message", "droplet: sync service state")
	v.SetDefault("sync.gitlab.url", "https://gitlab.com")
	v.SetDefault("sync.gitlab.project", "")
	v.SetDefault("sync.gitlab.create_if_missing", false)
	v.SetDefault("sync.gitlab.visibility", "private")

	v.SetDefault("service.runtime", "process")
	v.SetDefault("service.command", []string{})
	v.SetDefault("service.env", []string{})
	v.SetDefault("service.workdir", ".")
	v.SetDefault("service.docker.image", "")
	v.SetDefault("service.docker.pull", true)
	v.SetDefault("service.docker.mount", "/srv/droplet")
	v.SetDefault("service.docker.keep", false)

	v.SetDefault("metrics.textfile", "")
}

func configType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return "toml"
	}
}

// validateService checks the fields whose requirement depends on the chosen runtime.
func validateService(sl validator.StructLevel) {
	svc := sl.Current().Interface().(config.Service)
	if svc.Runtime == "process" && len(svc.Command) == 0 {
		sl.ReportError(svc.Command, "command", "Command", "required", "")
	}
	if svc.Runtime == "docker" && svc.Docker.Image == "" {
		sl.ReportError(svc.Docker.Image, "docker.image", "Image", "required", "")
	}
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, formatFieldError(e))
		}

		if len(errorMessages) == 1 {
			return fmt.Errorf("validation error: %s", errorMessages[0])
		}

		result := "validation errors:\n"
		for _, msg := range errorMessages {
			result += fmt.Sprintf("  - %s\n", msg)
		}
		return fmt.Errorf("%s", strings.TrimSuffix(result, "\n"))
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatFieldError formats a single validation error into a user-friendly message.
func formatFieldError(e validator.FieldError) string {
	field := fieldPath(e)
	tag := e.Tag()

	switch tag {
	case "required", "required_if":
		return fmt.Sprintf("field '%s' is required but missing", field)
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", field)
	case "fqdn":
		return fmt.Sprintf("field '%s' must be a fully qualified domain name", field)
	case "ip":
		return fmt.Sprintf("field '%s' must be an IP address", field)
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", field, e.Param())
	default:
		return fmt.Sprintf("field '%s' failed validation (%s)", field, tag)
	}
}

// fieldPath returns the dotted config key for a field, e.g. "dns.hostname".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
