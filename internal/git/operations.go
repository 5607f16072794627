// internal/git/operations.go
package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Commit carries the metadata of one commit plus the paths it touched,
// read straight from the object store instead of a formatted log line.
type Commit struct {
	Hash        string
	AuthorName  string
	AuthorEmail string
	When        time.Time
	Subject     string
	Files       []string
}

// Client performs working-copy operations for configured repositories.
// baseURL is either a remote URL prefix (https://github.com) or a local
// directory holding source repositories, which the tests rely on.
type Client struct {
	baseURL string
	token   string
	logger  *slog.Logger
}

// NewClient creates and configures a new Client instance.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{baseURL: baseURL, token: token, logger: logger}
}

// Sync guarantees a local working copy of org/name under cloneDir, checked
// out at version and current with its remote. It returns the working copy
// path. Any underlying failure (missing branch, auth, network) is returned
// as-is for the caller to isolate.
func (c *Client) Sync(ctx context.Context, cloneDir, org, name, version string) (string, error) {
	path := filepath.Join(cloneDir, org, name)
	branch := plumbing.NewBranchReferenceName(version)

	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		repo, err := git.PlainOpen(path)
		if err != nil {
			return "", fmt.Errorf("open repository: %w", err)
		}
		if err := checkoutBranch(repo, version); err != nil {
			return "", err
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return "", fmt.Errorf("get worktree: %w", err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{
			RemoteName:    "origin",
			ReferenceName: branch,
			Auth:          c.auth(),
		})
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return "", fmt.Errorf("pull %s: %w", branch.Short(), err)
		}
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create clone directory: %w", err)
	}
	c.logger.Info("Cloning repository", "org", org, "repo", name, "version", version)
	_, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:           c.remoteURL(org, name),
		ReferenceName: branch,
		Auth:          c.auth(),
	})
	if err != nil {
		return "", fmt.Errorf("clone %s/%s at %s: %w", org, name, version, err)
	}
	return path, nil
}

// CommitsSince returns the commits reachable from HEAD but not from the
// commit with hash since (the since..HEAD range), oldest-first so insertion
// order follows application order. Membership is decided by reachability,
// not by stopping the walk: a merge whose first-parent chain hits since
// before the side branch does must still yield the side-branch commits.
// An empty since gives the entire history. A since that cannot be resolved
// (rewritten history) also gives the entire history; the store's upsert
// semantics keep that safe.
func (c *Client) CommitsSince(path, since string) ([]Commit, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("get HEAD: %w", err)
	}
	known, err := reachableFrom(repo, since)
	if err != nil {
		return nil, err
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("get commit log: %w", err)
	}

	var commits []Commit
	err = iter.ForEach(func(commit *object.Commit) error {
		if known[commit.Hash] {
			return nil
		}
		files, err := touchedFiles(commit)
		if err != nil {
			return err
		}
		commits = append(commits, Commit{
			Hash:        commit.Hash.String(),
			AuthorName:  commit.Author.Name,
			AuthorEmail: commit.Author.Email,
			When:        commit.Author.When,
			Subject:     subject(commit.Message),
			Files:       files,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}

	// The log runs newest-first; reverse so the caller inserts oldest-first.
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

// reachableFrom collects every commit hash reachable from since, including
// since itself. An empty or unresolvable since yields an empty set, which
// makes the caller walk the entire history.
func reachableFrom(repo *git.Repository, since string) (map[plumbing.Hash]bool, error) {
	known := make(map[plumbing.Hash]bool)
	if since == "" {
		return known, nil
	}
	start, err := repo.CommitObject(plumbing.NewHash(since))
	if err != nil {
		return known, nil
	}
	iter := object.NewCommitPreorderIter(start, nil, nil)
	err = iter.ForEach(func(commit *object.Commit) error {
		known[commit.Hash] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk stored history: %w", err)
	}
	return known, nil
}

// touchedFiles lists the paths changed by a commit against its first
// parent; the initial commit changes everything in its tree.
func touchedFiles(commit *object.Commit) ([]string, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("get commit tree: %w", err)
	}

	if commit.NumParents() == 0 {
		var files []string
		err = tree.Files().ForEach(func(f *object.File) error {
			files = append(files, f.Name)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("iterate tree files: %w", err)
		}
		return files, nil
	}

	parent, err := commit.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("get parent commit: %w", err)
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return nil, fmt.Errorf("get parent tree: %w", err)
	}
	changes, err := parentTree.Diff(tree)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}

	var files []string
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		files = append(files, name)
	}
	return files, nil
}

func checkoutBranch(repo *git.Repository, branchName string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(branchName)
	if _, err := repo.Reference(branchRef, false); err == nil {
		if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef}); err != nil {
			return fmt.Errorf("checkout %s: %w", branchName, err)
		}
		return nil
	}

	// Not known locally; create a tracking branch from origin.
	remoteRef := plumbing.NewRemoteReferenceName("origin", branchName)
	ref, err := repo.Reference(remoteRef, true)
	if err != nil {
		return fmt.Errorf("branch %s not found locally or on origin: %w", branchName, err)
	}
	err = worktree.Checkout(&git.CheckoutOptions{
		Branch: branchRef,
		Hash:   ref.Hash(),
		Create: true,
	})
	if err != nil {
		return fmt.Errorf("checkout %s from origin: %w", branchName, err)
	}
	return nil
}

func (c *Client) remoteURL(org, name string) string {
	if strings.Contains(c.baseURL, "://") {
		return fmt.Sprintf("%s/%s/%s.git", strings.TrimSuffix(c.baseURL, "/"), org, name)
	}
	return filepath.Join(c.baseURL, org, name)
}

func (c *Client) auth() transport.AuthMethod {
	if c.token != "" && strings.HasPrefix(c.baseURL, "https://") {
		return &http.BasicAuth{Username: "token", Password: c.token}
	}
	return nil
}

func subject(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		message = message[:i]
	}
	return strings.TrimSpace(message)
}
