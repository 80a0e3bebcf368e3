// Package template renders file templates against an environment context
// and evaluates the presence conditions shared by template, copy, and
// symlink rules.
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Error reports a single template's rendering failure, carrying the
// source path so callers can point at the offending rule.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render template %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RepoRef is one repository visible to a template.
type RepoRef struct {
	Name   string
	Branch string
}

// SymlinkRef is one active symlink visible to a template.
type SymlinkRef struct {
	Source string
	Target string
}

// Context is the immutable data a template renders against.
type Context struct {
	EnvName   string
	EnvPath   string
	CreatedAt string
	Repos     []RepoRef
	RepoNames map[string]bool
	Symlinks  []SymlinkRef
}

// ShouldRender reports whether a rule with the given activation condition
// applies to the present repository set. A nil or empty condition is
// unconditional; otherwise every required name must be present.
func ShouldRender(when []string, present map[string]struct{}) bool {
	for _, name := range when {
		if _, ok := present[name]; !ok {
			return false
		}
	}
	return true
}

// Renderer loads template sources from the filesystem, including absolute
// paths, and executes them with missing-variable access treated as an
// error.
type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

// Render reads the template at path and executes it against ctx.
func (r *Renderer) Render(path string, ctx Context) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", &Error{Path: path, Err: err}
	}
	tmpl, err := template.New(filepath.Base(path)).Option("missingkey=error").Parse(string(b))
	if err != nil {
		return "", &Error{Path: path, Err: err}
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx); err != nil {
		return "", &Error{Path: path, Err: err}
	}
	return sb.String(), nil
}
