package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func mustGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	mustGit(t, dir, "init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mustGit(t, dir, "add", ".")
	mustGit(t, dir, "commit", "-m", "initial")
	return dir
}

func TestStatusCleanNoUpstream(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)
	c := NewClient(zerolog.Nop())

	st, err := c.Status(context.Background(), repo)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Uncommitted != 0 || st.Ahead != 0 || st.Behind != 0 {
		t.Fatalf("expected all-zero status, got %+v", st)
	}
}

func TestStatusCountsUncommitted(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)
	c := NewClient(zerolog.Nop())

	if err := os.WriteFile(filepath.Join(repo, "dirty.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := c.Status(context.Background(), repo)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Uncommitted != 1 {
		t.Fatalf("expected 1 uncommitted path, got %d", st.Uncommitted)
	}
}

func TestBranchExistsAndWorktrees(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)
	c := NewClient(zerolog.Nop())
	ctx := context.Background()

	ok, err := c.BranchExists(ctx, repo, "main")
	if err != nil {
		t.Fatalf("BranchExists() error = %v", err)
	}
	if !ok {
		t.Fatal("main should exist")
	}
	ok, err = c.BranchExists(ctx, repo, "no-such-branch")
	if err != nil {
		t.Fatalf("BranchExists() error = %v", err)
	}
	if ok {
		t.Fatal("no-such-branch should not exist")
	}

	// main is checked out in the primary worktree.
	inUse, err := c.BranchInWorktree(ctx, repo, "main")
	if err != nil {
		t.Fatalf("BranchInWorktree() error = %v", err)
	}
	if !inUse {
		t.Fatal("main should be reported as checked out")
	}

	wt := filepath.Join(t.TempDir(), "wt")
	if err := c.AddWorktree(ctx, repo, "feature-a", wt, ""); err == nil {
		t.Fatal("expected failure adding worktree for unknown branch")
	}
	mustGit(t, repo, "branch", "feature-a")
	if err := c.AddWorktree(ctx, repo, "feature-a", wt, ""); err != nil {
		t.Fatalf("AddWorktree() error = %v", err)
	}
	inUse, err = c.BranchInWorktree(ctx, repo, "feature-a")
	if err != nil {
		t.Fatalf("BranchInWorktree() error = %v", err)
	}
	if !inUse {
		t.Fatal("feature-a should be reported as checked out after worktree add")
	}
	if err := c.RemoveWorktree(ctx, repo, wt, true); err != nil {
		t.Fatalf("RemoveWorktree() error = %v", err)
	}
}

func TestEnsureCloneIdempotent(t *testing.T) {
	requireGit(t)
	src := initRepo(t)
	c := NewClient(zerolog.Nop())
	ctx := context.Background()

	dest := filepath.Join(t.TempDir(), "clone")
	if err := c.EnsureClone(ctx, src, dest); err != nil {
		t.Fatalf("EnsureClone() error = %v", err)
	}
	// Second call must be a no-op.
	if err := c.EnsureClone(ctx, "file:///nonexistent", dest); err != nil {
		t.Fatalf("EnsureClone() on existing clone should be a no-op, got %v", err)
	}
}

func TestErrorDistinguishesUnavailable(t *testing.T) {
	ge := &Error{Op: "clone", Unavailable: true, Err: exec.ErrNotFound}
	if ge.Error() == "" {
		t.Fatal("expected message")
	}
	ran := &Error{Op: "clone", Stderr: "fatal: repository not found"}
	if ran.Unavailable {
		t.Fatal("exit failure must not be marked unavailable")
	}
}
