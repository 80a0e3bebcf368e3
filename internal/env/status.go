package env

import (
	"context"
	"os"

	"github.com/fpp-125/warren/internal/registry"
)

// RepoStatus is the working-tree inspection of one repository instance.
type RepoStatus struct {
	Name        string
	Branch      string
	Uncommitted int
	Ahead       int
	Behind      int
	Err         error
}

// State is the single classification of a repository status.
type State int

const (
	StateClean State = iota
	StateAhead
	StateUncommitted
	StateError
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateAhead:
		return "ahead"
	case StateUncommitted:
		return "uncommitted"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Classify reduces a status to one state. Precedence is fixed: an
// inspection error wins over uncommitted changes, which win over
// unpushed commits. Behind-only repositories are clean.
func Classify(st RepoStatus) State {
	switch {
	case st.Err != nil:
		return StateError
	case st.Uncommitted > 0:
		return StateUncommitted
	case st.Ahead > 0:
		return StateAhead
	default:
		return StateClean
	}
}

// Report inspects every repository of env in registry order. A failure
// on one repository never stops inspection of the rest.
func (m *Manager) Report(ctx context.Context, env registry.Environment) []RepoStatus {
	statuses := make([]RepoStatus, 0, len(env.Repos))
	for _, repo := range env.Repos {
		st := RepoStatus{Name: repo.Name, Branch: repo.Branch}
		if _, err := os.Stat(repo.WorktreePath); err != nil {
			st.Err = &Error{Kind: KindNotFound, Env: env.Name, Repo: repo.Name, Err: err}
			statuses = append(statuses, st)
			continue
		}
		gs, err := m.git.Status(ctx, repo.WorktreePath)
		if err != nil {
			st.Err = m.wrapGit(env.Name, repo.Name, "inspect status", err)
			statuses = append(statuses, st)
			continue
		}
		st.Uncommitted = gs.Uncommitted
		st.Ahead = gs.Ahead
		st.Behind = gs.Behind
		statuses = append(statuses, st)
	}
	return statuses
}
