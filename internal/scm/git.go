package scm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"droplet/pkg/config"
)

const defaultUsername = "oauth2"

// GitSyncer synchronizes the workspace directory with a git remote.
type GitSyncer struct {
	resolver RemoteResolver
}

// NewGitSyncer creates a GitSyncer. resolver may be nil when remotes are only
// configured through sync.url.
func NewGitSyncer(resolver RemoteResolver) *GitSyncer {
	return &GitSyncer{resolver: resolver}
}

// Pull fetches the remote and fast-forwards the worktree.
func (s *GitSyncer) Pull(ctx context.Context, ws *config.Workspace) error {
	sync := ws.Config.Sync

	repo, remote, err := s.open(ctx, ws)
	if err != nil {
		return err
	}
	auth := authFor(remote, sync)

	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil && !errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return fmt.Errorf("failed to list remote %s: %w", sync.Remote, err)
	}
	if !hasBranches(refs) {
		slog.Info("Remote has no branches yet, nothing to pull", "remote", sync.Remote)
		return nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	opts := &git.PullOptions{
		RemoteName: sync.Remote,
		Auth:       auth,
	}
	if sync.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(sync.Branch)
	}

	err = worktree.PullContext(ctx, opts)
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		slog.Info("Working tree already up to date", "remote", sync.Remote)
		return nil
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return fmt.Errorf("local history has diverged from %s: %w", sync.Remote, err)
	case err != nil:
		return fmt.Errorf("failed to pull from %s: %w", sync.Remote, err)
	}

	head, err := repo.Head()
	if err == nil {
		slog.Info("Pulled changes", "remote", sync.Remote, "head", head.Hash().String())
	}
	return nil
}

// Push commits every change in the worktree, if any, and pushes to the remote.
func (s *GitSyncer) Push(ctx context.Context, ws *config.Workspace) error {
	sync := ws.Config.Sync

	repo, remote, err := s.open(ctx, ws)
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("failed to read worktree status: %w", err)
	}

	if !status.IsClean() {
		commit, err := worktree.Commit(sync.Message, &git.CommitOptions{
			Author: &object.Signature{
				Name:  sync.AuthorName,
				Email: sync.AuthorEmail,
				When:  time.Now(),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to commit changes: %w", err)
		}
		slog.Info("Committed service state", "hash", commit.String())
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("nothing to push: repository at %s has no commits", ws.Dir)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	opts := &git.PushOptions{
		RemoteName: sync.Remote,
		Auth:       authFor(remote, sync),
	}
	if sync.Branch != "" {
		opts.RefSpecs = []gitconfig.RefSpec{pushRefSpec(head, sync.Branch)}
	}

	err = repo.PushContext(ctx, opts)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		slog.Info("Remote already up to date", "remote", sync.Remote)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to push to %s: %w", sync.Remote, err)
	}

	slog.Info("Pushed changes", "remote", sync.Remote)
	return nil
}

// open returns the workspace repository and its sync remote, initializing
// either when missing and a remote URL is known.
func (s *GitSyncer) open(ctx context.Context, ws *config.Workspace) (*git.Repository, *git.Remote, error) {
	sync := ws.Config.Sync

	repo, err := git.PlainOpenWithOptions(ws.Dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		url, err := s.remoteURL(ctx, sync)
		if err != nil {
			return nil, nil, err
		}
		if url == "" {
			return nil, nil, fmt.Errorf("no git repository at %s and no remote URL configured (set sync.url or sync.gitlab.project)", ws.Dir)
		}

		slog.Info("Initializing git repository", "directory", ws.Dir, "branch", initialBranch(sync))
		repo, err = git.PlainInitWithOptions(ws.Dir, &git.PlainInitOptions{
			InitOptions: git.InitOptions{DefaultBranch: initialBranch(sync)},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize git repository: %w", err)
		}
		remote, err := createRemote(repo, sync.Remote, url)
		return repo, remote, err
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open git repository at %s: %w", ws.Dir, err)
	}

	remote, err := repo.Remote(sync.Remote)
	if errors.Is(err, git.ErrRemoteNotFound) {
		url, err := s.remoteURL(ctx, sync)
		if err != nil {
			return nil, nil, err
		}
		if url == "" {
			return nil, nil, fmt.Errorf("remote %s not found and no remote URL configured", sync.Remote)
		}
		remote, err = createRemote(repo, sync.Remote, url)
		return repo, remote, err
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read remote %s: %w", sync.Remote, err)
	}

	return repo, remote, nil
}

func (s *GitSyncer) remoteURL(ctx context.Context, sync config.Sync) (string, error) {
	if sync.URL != "" {
		return sync.URL, nil
	}
	if sync.GitLab.Project == "" || s.resolver == nil {
		return "", nil
	}
	url, err := s.resolver.ResolveURL(ctx, sync)
	if err != nil {
		return "", fmt.Errorf("failed to resolve remote URL: %w", err)
	}
	return url, nil
}

func createRemote(repo *git.Repository, name, url string) (*git.Remote, error) {
	remote, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: name,
		URLs: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add remote %s: %w", name, err)
	}
	slog.Info("Added git remote", "name", name, "url", url)
	return remote, nil
}

// initialBranch is the branch a freshly initialized workspace commits to.
func initialBranch(sync config.Sync) plumbing.ReferenceName {
	if sync.Branch == "" {
		return plumbing.Master
	}
	return plumbing.NewBranchReferenceName(sync.Branch)
}

// pushRefSpec maps the checked-out HEAD onto the configured remote branch.
// The source is always a ref or commit that exists locally, as go-git skips
// explicit refspecs whose source is missing and reports the push up to date.
func pushRefSpec(head *plumbing.Reference, branch string) gitconfig.RefSpec {
	dst := plumbing.NewBranchReferenceName(branch)
	src := head.Name().String()
	if !head.Name().IsBranch() {
		src = head.Hash().String()
	}
	return gitconfig.RefSpec(src + ":" + dst.String())
}

// authFor returns basic auth for http(s) remotes when a token is configured,
// and nil otherwise so go-git falls back to its defaults.
func authFor(remote *git.Remote, sync config.Sync) transport.AuthMethod {
	token := syncToken(sync)
	if token == "" {
		return nil
	}
	urls := remote.Config().URLs
	if len(urls) == 0 || !strings.HasPrefix(urls[0], "http") {
		return nil
	}

	username := sync.Username
	if username == "" {
		username = defaultUsername
	}
	return &http.BasicAuth{
		Username: username,
		Password: token,
	}
}

func hasBranches(refs []*plumbing.Reference) bool {
	for _, ref := range refs {
		if ref.Name().IsBranch() {
			return true
		}
	}
	return false
}
