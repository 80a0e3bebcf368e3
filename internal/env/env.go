// Package env orchestrates environment creation and deletion: git
// worktrees drawn from base repository clones, presence-conditioned
// symlinks and generated files, and the registry commit that makes an
// environment exist. Creation is transactional: every filesystem side
// effect is undone when any later step fails.
package env

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/fpp-125/warren/internal/config"
	"github.com/fpp-125/warren/internal/git"
	"github.com/fpp-125/warren/internal/history"
	"github.com/fpp-125/warren/internal/registry"
	"github.com/fpp-125/warren/internal/template"
)

// gitClient is the slice of the git client the orchestrator depends on.
type gitClient interface {
	EnsureClone(ctx context.Context, url, dest string) error
	DefaultBranch(ctx context.Context, repo string) (string, error)
	BranchExists(ctx context.Context, repo, branch string) (bool, error)
	BranchInWorktree(ctx context.Context, repo, branch string) (bool, error)
	AddWorktree(ctx context.Context, base, branch, dest, createFrom string) error
	RemoveWorktree(ctx context.Context, base, path string, force bool) error
	PruneWorktrees(ctx context.Context, base string) error
	FetchBranches(ctx context.Context, repo string) ([]string, error)
	Status(ctx context.Context, repo string) (git.Status, error)
}

// Manager drives environment transactions against the configured
// directories, the registry, and the git client.
type Manager struct {
	cfg      config.Config
	reg      *registry.Registry
	git      gitClient
	renderer *template.Renderer
	journal  *history.Store
	log      zerolog.Logger
}

// New wires a Manager with the default collaborators. The operation
// journal is best-effort: when it cannot be opened the manager still
// works, it just records nothing.
func New(cfg config.Config, logger zerolog.Logger) *Manager {
	journal, err := history.Open(config.DataDir())
	if err != nil {
		logger.Warn().Err(err).Msg("operation journal unavailable")
		journal = nil
	}
	return &Manager{
		cfg:      cfg,
		reg:      registry.New(config.RegistryPath()),
		git:      git.NewClient(logger),
		renderer: template.NewRenderer(),
		journal:  journal,
		log:      logger,
	}
}

func (m *Manager) Close() error {
	if m.journal == nil {
		return nil
	}
	return m.journal.Close()
}

// Registry exposes the read surface for list/info flows.
func (m *Manager) Registry() *registry.Registry { return m.reg }

// CreateOptions is a desired environment specification.
type CreateOptions struct {
	Name            string
	Repos           map[string]string // repository name -> branch
	Fetch           bool
	RenderTemplates bool
	PR              *registry.PRInfo
}

var envNameRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// ValidName reports whether name is usable as an environment directory
// name: alphanumeric, hyphen, underscore, no leading hyphen or dot.
func ValidName(name string) bool {
	return envNameRe.MatchString(name)
}

// Create provisions a new environment. Steps run strictly in order; any
// failure after the environment directory exists rolls back every side
// effect of this invocation. Base repository clones are shared across
// environments and never removed by rollback.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (registry.Environment, error) {
	if !ValidName(opts.Name) {
		return registry.Environment{}, &Error{
			Kind: KindInvalidInput, Env: opts.Name,
			Err: fmt.Errorf("invalid environment name %q: use letters, numbers, hyphens, and underscores", opts.Name),
		}
	}
	if len(opts.Repos) == 0 {
		return registry.Environment{}, &Error{
			Kind: KindInvalidInput, Env: opts.Name,
			Err: errors.New("at least one repository is required"),
		}
	}

	exists, err := m.reg.Exists(opts.Name)
	if err != nil {
		return registry.Environment{}, fmt.Errorf("check registry: %w", err)
	}
	if exists {
		return registry.Environment{}, &Error{
			Kind: KindConflict, Env: opts.Name,
			Err: fmt.Errorf("environment %q already exists", opts.Name),
		}
	}
	envPath := filepath.Join(m.cfg.EnvironmentsDir, opts.Name)
	if _, err := os.Stat(envPath); err == nil {
		// Likely debris from an interrupted creation; refuse to adopt it.
		return registry.Environment{}, &Error{
			Kind: KindConflict, Env: opts.Name,
			Err: fmt.Errorf("directory %s exists on disk but is not registered; remove it manually and retry", envPath),
		}
	}

	opID := m.journalBegin(opts.Name, "create")

	repoNames := sortedKeys(opts.Repos)
	present := make(map[string]struct{}, len(repoNames))
	for _, name := range repoNames {
		present[name] = struct{}{}
	}

	// Step 1: base repository clones, idempotent and shared.
	for _, name := range repoNames {
		repoCfg, ok := m.cfg.Repositories[name]
		if !ok {
			return registry.Environment{}, m.journalFail(opID, &Error{
				Kind: KindNotFound, Env: opts.Name, Repo: name,
				Err: fmt.Errorf("repository %q is not in the configuration", name),
			})
		}
		base := filepath.Join(m.cfg.BaseReposDir, name)
		if err := m.git.EnsureClone(ctx, repoCfg.URL, base); err != nil {
			return registry.Environment{}, m.journalFail(opID, m.wrapGit(opts.Name, name, "provision base repository", err))
		}
	}

	// Step 2: optional fetch, informational only.
	if opts.Fetch {
		for _, name := range repoNames {
			base := filepath.Join(m.cfg.BaseReposDir, name)
			branches, err := m.git.FetchBranches(ctx, base)
			if err != nil {
				m.log.Warn().Err(err).Str("repo", name).Msg("fetch failed, continuing with local state")
				continue
			}
			m.log.Debug().Str("repo", name).Int("remote_branches", len(branches)).Msg("fetched")
		}
	}

	// Resolve branches before touching environment state.
	createFrom := make(map[string]string, len(repoNames))
	for _, name := range repoNames {
		base := filepath.Join(m.cfg.BaseReposDir, name)
		branch := opts.Repos[name]
		known, err := m.git.BranchExists(ctx, base, branch)
		if err != nil {
			return registry.Environment{}, m.journalFail(opID, m.wrapGit(opts.Name, name, "resolve branch", err))
		}
		if !known {
			def, err := m.git.DefaultBranch(ctx, base)
			if err != nil {
				return registry.Environment{}, m.journalFail(opID, m.wrapGit(opts.Name, name, "resolve default branch", err))
			}
			m.log.Info().Str("repo", name).Str("branch", branch).Str("base_branch", def).Msg("branch not found, creating from default branch")
			createFrom[name] = def
		}
	}

	// Step 3: the environment root. From here on everything is undone on
	// failure.
	var undo undoStack
	if err := os.MkdirAll(m.cfg.EnvironmentsDir, 0o755); err != nil {
		return registry.Environment{}, m.journalFail(opID, fmt.Errorf("create environments dir: %w", err))
	}
	if err := os.Mkdir(envPath, 0o755); err != nil {
		if os.IsExist(err) {
			return registry.Environment{}, m.journalFail(opID, &Error{
				Kind: KindConflict, Env: opts.Name,
				Err: fmt.Errorf("directory %s appeared during creation (concurrent create?)", envPath),
			})
		}
		return registry.Environment{}, m.journalFail(opID, fmt.Errorf("create environment dir: %w", err))
	}
	undo.push("remove environment directory", func() error {
		return os.RemoveAll(envPath)
	})

	fail := func(primary error) (registry.Environment, error) {
		return registry.Environment{}, m.journalFail(opID, undo.rollback(primary, m.log))
	}

	// Step 4: one worktree per repository. The conflict check and the
	// worktree add form a critical section per (base repo, branch).
	instances := make([]registry.RepoInstance, 0, len(repoNames))
	for _, name := range repoNames {
		base := filepath.Join(m.cfg.BaseReposDir, name)
		branch := opts.Repos[name]
		dest := filepath.Join(envPath, name)

		err := func() error {
			unlock := lockBranch(base, branch)
			defer unlock()
			if createFrom[name] == "" {
				inUse, err := m.git.BranchInWorktree(ctx, base, branch)
				if err != nil {
					return m.wrapGit(opts.Name, name, "check branch availability", err)
				}
				if inUse {
					return &Error{
						Kind: KindConflict, Env: opts.Name, Repo: name,
						Err: fmt.Errorf("branch %q is already checked out in another worktree", branch),
					}
				}
			}
			if err := m.git.AddWorktree(ctx, base, branch, dest, createFrom[name]); err != nil {
				return m.wrapGit(opts.Name, name, "create worktree", err)
			}
			return nil
		}()
		if err != nil {
			return fail(err)
		}
		undo.push("remove worktree "+name, func() error {
			if err := m.git.RemoveWorktree(ctx, base, dest, true); err != nil {
				return err
			}
			return m.git.PruneWorktrees(ctx, base)
		})
		instances = append(instances, registry.RepoInstance{Name: name, Branch: branch, WorktreePath: dest})
	}

	// Step 5: symlinks whose condition holds and whose source exists.
	activeSymlinks := make([]registry.SymlinkEntry, 0, len(m.cfg.Symlinks))
	for _, rule := range m.cfg.Symlinks {
		if !template.ShouldRender(rule.When, present) {
			continue
		}
		source := filepath.Join(envPath, rule.Source)
		if _, err := os.Stat(source); err != nil {
			m.log.Debug().Str("source", rule.Source).Msg("symlink source missing, rule skipped")
			continue
		}
		target := filepath.Join(envPath, rule.Target)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fail(fmt.Errorf("create symlink parent dir: %w", err))
		}
		resolved, err := filepath.Abs(source)
		if err != nil {
			return fail(fmt.Errorf("resolve symlink source: %w", err))
		}
		if err := os.Symlink(resolved, target); err != nil {
			return fail(fmt.Errorf("create symlink %s -> %s: %w", rule.Target, rule.Source, err))
		}
		activeSymlinks = append(activeSymlinks, registry.SymlinkEntry{Source: rule.Source, Target: rule.Target})
	}

	// Step 6: templates. Each rule renders independently; failures are
	// aggregated over the whole pass and abort only afterwards.
	var generated []string
	if opts.RenderTemplates {
		tctx := buildTemplateContext(opts.Name, envPath, instances, activeSymlinks)
		var renderErrs []error
		for _, rule := range m.cfg.Templates {
			if !template.ShouldRender(rule.When, present) {
				continue
			}
			content, err := m.renderer.Render(rule.Source, tctx)
			if err != nil {
				renderErrs = append(renderErrs, err)
				continue
			}
			dest := filepath.Join(envPath, rule.Destination)
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				renderErrs = append(renderErrs, fmt.Errorf("create dir for %s: %w", rule.Destination, err))
				continue
			}
			if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
				renderErrs = append(renderErrs, fmt.Errorf("write %s: %w", rule.Destination, err))
				continue
			}
			generated = append(generated, rule.Destination)
		}
		if len(renderErrs) > 0 {
			return fail(&Error{
				Kind: KindTemplateFailure, Env: opts.Name, Step: "render templates",
				Err: errors.Join(renderErrs...),
			})
		}
	}

	// Step 7: verbatim file copies.
	for _, rule := range m.cfg.CopyFiles {
		if !template.ShouldRender(rule.When, present) {
			continue
		}
		if _, err := os.Stat(rule.Source); err != nil {
			m.log.Debug().Str("source", rule.Source).Msg("copy source missing, rule skipped")
			continue
		}
		dest := filepath.Join(envPath, rule.Destination)
		if err := copyFile(rule.Source, dest); err != nil {
			return fail(fmt.Errorf("copy %s: %w", rule.Destination, err))
		}
		generated = append(generated, rule.Destination)
	}

	// Step 8: commit. Only now does the environment exist.
	rec := registry.NewEnvironment(opts.Name, envPath, instances, generated, activeSymlinks)
	rec.PR = opts.PR
	if err := m.reg.Add(rec); err != nil {
		if errors.Is(err, registry.ErrExists) {
			return fail(&Error{Kind: KindConflict, Env: opts.Name, Err: err})
		}
		return fail(fmt.Errorf("commit environment record: %w", err))
	}

	m.journalFinish(opID, "succeeded", fmt.Sprintf("%d repos", len(instances)))
	m.log.Info().Str("env", opts.Name).Str("path", envPath).Int("repos", len(instances)).Msg("environment created")
	return rec, nil
}

// Delete removes an environment: worktrees, directory, registry record.
// Without force it refuses when any repository holds uncommitted changes
// or unpushed commits. Worktree removal is best-effort per worktree; all
// sub-failures are surfaced together.
func (m *Manager) Delete(ctx context.Context, name string, force bool) error {
	env, err := m.reg.Get(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return &Error{Kind: KindNotFound, Env: name, Err: err}
		}
		return err
	}

	if !force {
		statuses := m.Report(ctx, env)
		var blocked []BlockedRepo
		for _, st := range statuses {
			if st.Uncommitted > 0 || st.Ahead > 0 {
				blocked = append(blocked, BlockedRepo{Name: st.Name, Uncommitted: st.Uncommitted, Ahead: st.Ahead})
			}
		}
		if len(blocked) > 0 {
			return &Error{
				Kind: KindConflict, Env: name,
				Err: &DeleteBlockedError{Env: name, Repos: blocked},
			}
		}
	}

	opID := m.journalBegin(name, "delete")

	var failures []error
	for _, repo := range env.Repos {
		base := filepath.Join(m.cfg.BaseReposDir, repo.Name)
		if _, err := os.Stat(base); err != nil {
			continue
		}
		if err := m.git.RemoveWorktree(ctx, base, repo.WorktreePath, true); err != nil {
			failures = append(failures, fmt.Errorf("remove worktree %s: %w", repo.Name, err))
		}
		if err := m.git.PruneWorktrees(ctx, base); err != nil {
			m.log.Debug().Err(err).Str("repo", repo.Name).Msg("worktree prune failed")
		}
	}

	if err := os.RemoveAll(env.Path); err != nil {
		failures = append(failures, fmt.Errorf("remove environment directory: %w", err))
		// The invariant "no registry record without a directory" also
		// means never dropping the record while the directory survives.
		return m.journalFail(opID, &Error{Kind: KindPartial, Env: name, Err: errors.Join(failures...)})
	}

	if err := m.reg.Remove(name); err != nil {
		failures = append(failures, fmt.Errorf("remove registry record: %w", err))
	}

	if len(failures) > 0 {
		return m.journalFail(opID, &Error{Kind: KindPartial, Env: name, Err: errors.Join(failures...)})
	}
	m.journalFinish(opID, "succeeded", "")
	m.log.Info().Str("env", name).Msg("environment deleted")
	return nil
}

// Info returns the registry record for name.
func (m *Manager) Info(name string) (registry.Environment, error) {
	env, err := m.reg.Get(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return registry.Environment{}, &Error{Kind: KindNotFound, Env: name, Err: err}
		}
		return registry.Environment{}, err
	}
	return env, nil
}

// Path returns the environment directory for name.
func (m *Manager) Path(name string) (string, error) {
	env, err := m.Info(name)
	if err != nil {
		return "", err
	}
	return env.Path, nil
}

// List returns all registered environments, name-sorted.
func (m *Manager) List() ([]registry.Environment, error) {
	return m.reg.List()
}

// History returns the most recent journaled operations.
func (m *Manager) History(limit int) ([]history.Record, error) {
	if m.journal == nil {
		return nil, errors.New("operation journal unavailable")
	}
	return m.journal.List(limit)
}

func (m *Manager) wrapGit(envName, repo, step string, err error) error {
	kind := KindToolFailure
	var ge *git.Error
	if errors.As(err, &ge) && ge.Unavailable {
		kind = KindToolUnavailable
	}
	return &Error{Kind: kind, Env: envName, Repo: repo, Step: step, Err: err}
}

func (m *Manager) journalBegin(envName, action string) string {
	if m.journal == nil {
		return ""
	}
	opID, err := m.journal.Begin(envName, action)
	if err != nil {
		m.log.Debug().Err(err).Msg("journal begin failed")
		return ""
	}
	return opID
}

func (m *Manager) journalFinish(opID, status, detail string) {
	if m.journal == nil || opID == "" {
		return
	}
	if err := m.journal.Finish(opID, status, detail); err != nil {
		m.log.Debug().Err(err).Msg("journal finish failed")
	}
}

func (m *Manager) journalFail(opID string, err error) error {
	m.journalFinish(opID, "failed", err.Error())
	return err
}

func buildTemplateContext(name, envPath string, repos []registry.RepoInstance, symlinks []registry.SymlinkEntry) template.Context {
	refs := make([]template.RepoRef, len(repos))
	names := make(map[string]bool, len(repos))
	for i, r := range repos {
		refs[i] = template.RepoRef{Name: r.Name, Branch: r.Branch}
		names[r.Name] = true
	}
	links := make([]template.SymlinkRef, len(symlinks))
	for i, s := range symlinks {
		links[i] = template.SymlinkRef{Source: s.Source, Target: s.Target}
	}
	return template.Context{
		EnvName:   name,
		EnvPath:   envPath,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Repos:     refs,
		RepoNames: names,
		Symlinks:  links,
	}
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	st, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, st.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
