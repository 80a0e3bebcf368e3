package env

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an operation failure so callers (the CLI in
// particular) can branch on it without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidInput: bad environment name, malformed repo:branch pair.
	KindInvalidInput
	// KindConflict: name already registered, branch already checked out,
	// or an unregistered directory in the way.
	KindConflict
	// KindNotFound: unknown environment or repository name.
	KindNotFound
	// KindToolFailure: git ran and reported failure.
	KindToolFailure
	// KindToolUnavailable: git could not be invoked at all.
	KindToolUnavailable
	// KindTemplateFailure: one or more template rules failed to render.
	KindTemplateFailure
	// KindPartial: delete removed some resources and failed on others.
	KindPartial
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not found"
	case KindToolFailure:
		return "tool failure"
	case KindToolUnavailable:
		return "tool unavailable"
	case KindTemplateFailure:
		return "template failure"
	case KindPartial:
		return "partial failure"
	default:
		return "unknown"
	}
}

// Error carries the structured detail the presentation layer needs to
// render an actionable message: the environment, the repository, and the
// creation step that failed.
type Error struct {
	Kind Kind
	Env  string
	Repo string
	Step string
	Err  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Env != "" {
		fmt.Fprintf(&sb, "environment %s: ", e.Env)
	}
	if e.Repo != "" {
		fmt.Fprintf(&sb, "repository %s: ", e.Repo)
	}
	if e.Step != "" {
		fmt.Fprintf(&sb, "%s: ", e.Step)
	}
	if e.Err != nil {
		sb.WriteString(e.Err.Error())
	} else {
		sb.WriteString(e.Kind.String())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from an error chain, KindUnknown when none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// BlockedRepo describes outstanding work that blocks deletion.
type BlockedRepo struct {
	Name        string
	Uncommitted int
	Ahead       int
}

// DeleteBlockedError refuses a delete because repositories hold
// uncommitted changes or unpushed commits and force was not set.
type DeleteBlockedError struct {
	Env   string
	Repos []BlockedRepo
}

func (e *DeleteBlockedError) Error() string {
	parts := make([]string, len(e.Repos))
	for i, r := range e.Repos {
		parts[i] = fmt.Sprintf("%s (%d unpushed, %d uncommitted)", r.Name, r.Ahead, r.Uncommitted)
	}
	return fmt.Sprintf("environment %s has outstanding work: %s (use --force to delete anyway)",
		e.Env, strings.Join(parts, ", "))
}
