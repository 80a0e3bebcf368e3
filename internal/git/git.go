// Package git wraps the git binary for clone, fetch, worktree, and status
// operations. Every method runs exactly one git invocation and translates
// its exit status and captured stderr into a typed *Error.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Error is returned for every failed git invocation. Unavailable
// distinguishes "git could not be started at all" from "git ran and
// reported failure"; callers need different remediation messaging for the
// two.
type Error struct {
	Op          string
	Args        []string
	Stderr      string
	Unavailable bool
	Err         error
}

func (e *Error) Error() string {
	if e.Unavailable {
		return fmt.Sprintf("git %s: cannot invoke git: %v", e.Op, e.Err)
	}
	if e.Stderr != "" {
		return fmt.Sprintf("git %s failed: %s", e.Op, e.Stderr)
	}
	return fmt.Sprintf("git %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Status is the synchronization state of one working tree.
type Status struct {
	Uncommitted int
	Ahead       int
	Behind      int
}

// Client runs git commands against repository paths. It is stateless and
// safe for concurrent use across distinct repositories.
type Client struct {
	log zerolog.Logger
}

func NewClient(logger zerolog.Logger) *Client {
	return &Client{log: logger}
}

// run executes one git command and returns stdout. A non-zero exit or a
// failure to start the binary yields an *Error.
func (c *Client) run(ctx context.Context, op, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	err := cmd.Run()
	if err != nil {
		ge := &Error{Op: op, Args: args, Stderr: strings.TrimSpace(errBuf.String()), Err: err}
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			ge.Unavailable = true
		}
		c.log.Debug().Str("op", op).Str("dir", dir).Str("stderr", ge.Stderr).Msg("git command failed")
		return out.String(), ge
	}
	return out.String(), nil
}

// probe executes a git command where a non-zero exit is an expected
// answer, not a failure. ok reports exit status zero; err is set only when
// git could not be invoked.
func (c *Client) probe(ctx context.Context, op, dir string, args ...string) (stdout string, ok bool, err error) {
	out, runErr := c.run(ctx, op, dir, args...)
	if runErr == nil {
		return out, true, nil
	}
	var ge *Error
	if errors.As(runErr, &ge) && !ge.Unavailable {
		return out, false, nil
	}
	return out, false, runErr
}

// EnsureClone makes sure dest holds a clone of url. An existing repository
// at dest is left untouched, so base-repo provisioning is idempotent and
// shared across environments.
func (c *Client) EnsureClone(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create clone parent dir: %w", err)
	}
	c.log.Info().Str("url", url).Str("dest", dest).Msg("cloning base repository")
	_, err := c.run(ctx, "clone", "", "clone", url, dest)
	return err
}

// Fetch updates all remotes of the repository, pruning deleted refs.
func (c *Client) Fetch(ctx context.Context, repo string) error {
	_, err := c.run(ctx, "fetch", repo, "fetch", "--all", "--prune")
	return err
}

// CurrentBranch returns the checked-out branch name, empty when detached.
func (c *Client) CurrentBranch(ctx context.Context, repo string) (string, error) {
	out, err := c.run(ctx, "current-branch", repo, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// DefaultBranch resolves the base repository's default branch: the
// remote's symbolic HEAD when configured, otherwise the first of
// origin/main, origin/master that exists, otherwise "main".
func (c *Client) DefaultBranch(ctx context.Context, repo string) (string, error) {
	out, ok, err := c.probe(ctx, "default-branch", repo, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err != nil {
		return "", err
	}
	if ok {
		ref := strings.TrimSpace(out)
		if i := strings.LastIndex(ref, "/"); i >= 0 {
			return ref[i+1:], nil
		}
	}
	for _, candidate := range []string{"main", "master"} {
		_, ok, err := c.probe(ctx, "default-branch", repo, "rev-parse", "--verify", "origin/"+candidate)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
	}
	return "main", nil
}

// BranchExists reports whether branch exists locally or on origin.
func (c *Client) BranchExists(ctx context.Context, repo, branch string) (bool, error) {
	_, ok, err := c.probe(ctx, "branch-exists", repo, "rev-parse", "--verify", branch)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	_, ok, err = c.probe(ctx, "branch-exists", repo, "rev-parse", "--verify", "origin/"+branch)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// BranchInWorktree reports whether branch is already checked out in any
// worktree of the base repository.
func (c *Client) BranchInWorktree(ctx context.Context, repo, branch string) (bool, error) {
	out, err := c.run(ctx, "worktree-list", repo, "worktree", "list", "--porcelain")
	if err != nil {
		return false, err
	}
	return worktreeHasBranch(out, branch), nil
}

// AddWorktree creates a worktree at dest checked out to branch. When
// createFrom is non-empty a new branch is created pointed at
// origin/<createFrom>.
func (c *Client) AddWorktree(ctx context.Context, base, branch, dest, createFrom string) error {
	if createFrom != "" {
		_, err := c.run(ctx, "worktree-add", base, "worktree", "add", "-b", branch, dest, "origin/"+createFrom)
		return err
	}
	_, err := c.run(ctx, "worktree-add", base, "worktree", "add", dest, branch)
	return err
}

// RemoveWorktree detaches and deletes the worktree at path.
func (c *Client) RemoveWorktree(ctx context.Context, base, path string, force bool) error {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	_, err := c.run(ctx, "worktree-remove", base, args...)
	return err
}

// PruneWorktrees drops stale worktree metadata from the base repository.
func (c *Client) PruneWorktrees(ctx context.Context, base string) error {
	_, err := c.run(ctx, "worktree-prune", base, "worktree", "prune")
	return err
}

// FetchBranches fetches all remotes and returns the deduplicated,
// lexicographically sorted remote branch names with the remote prefix
// stripped. Safe to run concurrently across distinct repositories; it
// touches only the target repository's own object store.
func (c *Client) FetchBranches(ctx context.Context, repo string) ([]string, error) {
	if err := c.Fetch(ctx, repo); err != nil {
		return nil, err
	}
	out, err := c.run(ctx, "branch-list", repo, "branch", "-r", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	return parseBranchList(out), nil
}

// Status queries the worktree's porcelain status and its divergence from
// the configured upstream. A missing upstream reports zero ahead/behind
// rather than an error.
func (c *Client) Status(ctx context.Context, repo string) (Status, error) {
	out, err := c.run(ctx, "status", repo, "status", "--porcelain")
	if err != nil {
		return Status{}, err
	}
	st := Status{Uncommitted: countPorcelain(out)}

	out, ok, err := c.probe(ctx, "ahead-behind", repo, "rev-list", "--left-right", "--count", "@{u}...HEAD")
	if err != nil {
		return Status{}, err
	}
	if ok {
		behind, ahead, parseErr := parseAheadBehind(out)
		if parseErr != nil {
			return Status{}, parseErr
		}
		st.Behind = behind
		st.Ahead = ahead
	}
	return st, nil
}
