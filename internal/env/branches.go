package env

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// EnsureBases clones any missing base repositories for the named
// catalog entries. Names absent from the catalog are rejected.
func (m *Manager) EnsureBases(ctx context.Context, repos []string) error {
	for _, name := range repos {
		repoCfg, ok := m.cfg.Repositories[name]
		if !ok {
			return &Error{Kind: KindNotFound, Repo: name,
				Err: fmt.Errorf("repository %q is not in the configuration", name)}
		}
		base := filepath.Join(m.cfg.BaseReposDir, name)
		if err := m.git.EnsureClone(ctx, repoCfg.URL, base); err != nil {
			return m.wrapGit("", name, "provision base repository", err)
		}
	}
	return nil
}

// RepoNames returns the configured repository names, sorted.
func (m *Manager) RepoNames() []string {
	names := make([]string, 0, len(m.cfg.Repositories))
	for name := range m.cfg.Repositories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BranchList is the fetch result for one configured repository.
type BranchList struct {
	Repo     string
	Branches []string
	Err      error
}

// FetchAllBranches fetches and lists remote branches for every named
// repository concurrently, one goroutine per repository. A failure on
// one repository is recorded in its slot and never cancels the others.
// Results come back in the order of repos.
func (m *Manager) FetchAllBranches(ctx context.Context, repos []string) []BranchList {
	results := make([]BranchList, len(repos))
	var wg sync.WaitGroup
	for i, name := range repos {
		i, name := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = BranchList{Repo: name}
			base := filepath.Join(m.cfg.BaseReposDir, name)
			branches, err := m.git.FetchBranches(ctx, base)
			if err != nil {
				results[i].Err = m.wrapGit("", name, "fetch branches", err)
				return
			}
			results[i].Branches = branches
		}()
	}
	wg.Wait()
	return results
}
