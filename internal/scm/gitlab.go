package scm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	gitlab "github.com/xanzy/go-gitlab"

	"droplet/pkg/config"
)

// GitLabTokenEnv is consulted when sync.token is empty.
const GitLabTokenEnv = "GITLAB_PRIVATE_TOKEN"

const defaultGitLabURL = "https://gitlab.com"

// GitLabResolver resolves sync remotes from GitLab projects, optionally creating
// the project when it does not exist.
type GitLabResolver struct{}

// NewGitLabResolver creates a new GitLabResolver.
func NewGitLabResolver() *GitLabResolver {
	return &GitLabResolver{}
}

// ResolveURL returns the HTTPS clone URL of sync.gitlab.project.
func (g *GitLabResolver) ResolveURL(ctx context.Context, cfg config.Sync) (string, error) {
	project := strings.Trim(cfg.GitLab.Project, "/")
	if project == "" {
		return "", fmt.Errorf("no GitLab project configured (set sync.gitlab.project)")
	}

	client, err := newGitLabClient(cfg)
	if err != nil {
		return "", err
	}

	existing, resp, err := client.Projects.GetProject(project, nil, gitlab.WithContext(ctx))
	if err == nil {
		slog.Info("Resolved GitLab project", "project", project, "url", existing.HTTPURLToRepo)
		return existing.HTTPURLToRepo, nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return "", fmt.Errorf("failed to look up GitLab project %s: %w", project, err)
	}
	if !cfg.GitLab.CreateIfMissing {
		return "", fmt.Errorf("GitLab project %s does not exist (set sync.gitlab.create_if_missing to create it)", project)
	}

	return createProject(ctx, client, project, cfg.GitLab.Visibility)
}

// syncToken returns sync.token, falling back to GitLabTokenEnv. Both the
// GitLab API and the git transport authenticate with it.
func syncToken(cfg config.Sync) string {
	if cfg.Token != "" {
		return cfg.Token
	}
	return os.Getenv(GitLabTokenEnv)
}

func newGitLabClient(cfg config.Sync) (*gitlab.Client, error) {
	token := syncToken(cfg)
	if token == "" {
		return nil, fmt.Errorf("no GitLab token configured (set sync.token or %s)", GitLabTokenEnv)
	}

	baseURL := strings.TrimSuffix(cfg.GitLab.URL, "/")
	if baseURL == "" {
		baseURL = defaultGitLabURL
	}

	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(baseURL+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}
	return client, nil
}

// createProject creates project (a "namespace/name" path) and returns its clone URL.
func createProject(ctx context.Context, client *gitlab.Client, project, visibility string) (string, error) {
	name := project
	opts := &gitlab.CreateProjectOptions{
		Visibility:           visibilityValue(visibility),
		InitializeWithReadme: gitlab.Bool(false),
	}

	if i := strings.LastIndex(project, "/"); i >= 0 {
		namespacePath := project[:i]
		name = project[i+1:]

		namespace, _, err := client.Namespaces.GetNamespace(namespacePath, gitlab.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("failed to look up GitLab namespace %s: %w", namespacePath, err)
		}
		opts.NamespaceID = gitlab.Int(namespace.ID)
	}
	opts.Name = gitlab.String(name)
	opts.Path = gitlab.String(name)

	slog.Info("Creating GitLab project", "project", project, "visibility", *opts.Visibility)

	created, _, err := client.Projects.CreateProject(opts, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create GitLab project %s: %w", project, err)
	}

	slog.Info("GitLab project created successfully", "id", created.ID, "url", created.HTTPURLToRepo)
	return created.HTTPURLToRepo, nil
}

// visibilityValue converts a visibility string to a GitLab visibility level,
// defaulting to private.
func visibilityValue(visibility string) *gitlab.VisibilityValue {
	switch visibility {
	case "public":
		return gitlab.Visibility(gitlab.PublicVisibility)
	case "internal":
		return gitlab.Visibility(gitlab.InternalVisibility)
	default:
		return gitlab.Visibility(gitlab.PrivateVisibility)
	}
}
