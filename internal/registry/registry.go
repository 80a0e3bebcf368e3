// Package registry persists the durable mapping from environment name to
// its recorded metadata as a version-tagged JSON document, rewritten
// atomically on every mutation.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Version is the registry document format this build reads and writes.
// Documents with any other version are rejected, never best-effort parsed.
const Version = 1

var (
	ErrNotFound = errors.New("environment not found")
	ErrExists   = errors.New("environment already exists")
)

// RepoInstance is one repository materialized inside an environment.
type RepoInstance struct {
	Name         string `json:"name"`
	Branch       string `json:"branch"`
	WorktreePath string `json:"worktree_path"`
}

// SymlinkEntry is one realized symlink, both paths relative to the
// environment root.
type SymlinkEntry struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// PRInfo is optional pull-request review metadata attached at creation.
type PRInfo struct {
	Number   int    `json:"number"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	HeadRef  string `json:"head_ref"`
	RepoName string `json:"repo_name"`
}

// Environment is the aggregate record committed once per successful
// creation and removed whole on deletion.
type Environment struct {
	Name           string         `json:"name"`
	Path           string         `json:"path"`
	CreatedAt      string         `json:"created_at"`
	Repos          []RepoInstance `json:"repos"`
	GeneratedFiles []string       `json:"generated_files"`
	Symlinks       []SymlinkEntry `json:"symlinks"`
	PR             *PRInfo        `json:"pr_info,omitempty"`
}

// NewEnvironment stamps a record with the current time in RFC 3339.
func NewEnvironment(name, path string, repos []RepoInstance, generated []string, symlinks []SymlinkEntry) Environment {
	if generated == nil {
		generated = []string{}
	}
	if symlinks == nil {
		symlinks = []SymlinkEntry{}
	}
	if repos == nil {
		repos = []RepoInstance{}
	}
	return Environment{
		Name:           name,
		Path:           path,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		Repos:          repos,
		GeneratedFiles: generated,
		Symlinks:       symlinks,
	}
}

type document struct {
	Version      int                    `json:"version"`
	Environments map[string]Environment `json:"environments"`
}

// Registry reads and rewrites the JSON registry file. Mutations load the
// whole document, change it in memory, and atomically replace the file, so
// a crash mid-write never leaves a half-written registry. Single-writer
// discipline is assumed (local developer tool).
type Registry struct {
	path string
}

func New(path string) *Registry {
	return &Registry{path: path}
}

func (r *Registry) Path() string { return r.path }

func (r *Registry) load() (document, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{Version: Version, Environments: map[string]Environment{}}, nil
		}
		return document{}, fmt.Errorf("read registry: %w", err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return document{}, fmt.Errorf("parse registry %s: %w", r.path, err)
	}
	if doc.Version != Version {
		return document{}, fmt.Errorf("registry %s has unsupported version %d (this build reads version %d)", r.path, doc.Version, Version)
	}
	if doc.Environments == nil {
		doc.Environments = map[string]Environment{}
	}
	return doc, nil
}

func (r *Registry) save(doc document) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".registry-*.json")
	if err != nil {
		return fmt.Errorf("create registry temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write registry temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close registry temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

// Exists reports whether name has a registry record.
func (r *Registry) Exists(name string) (bool, error) {
	doc, err := r.load()
	if err != nil {
		return false, err
	}
	_, ok := doc.Environments[name]
	return ok, nil
}

// Get returns the record for name, or ErrNotFound.
func (r *Registry) Get(name string) (Environment, error) {
	doc, err := r.load()
	if err != nil {
		return Environment{}, err
	}
	env, ok := doc.Environments[name]
	if !ok {
		return Environment{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return env, nil
}

// Add commits a new record; a duplicate name is ErrExists.
func (r *Registry) Add(env Environment) error {
	doc, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Environments[env.Name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, env.Name)
	}
	doc.Environments[env.Name] = env
	return r.save(doc)
}

// Remove deletes the record for name, or returns ErrNotFound.
func (r *Registry) Remove(name string) error {
	doc, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Environments[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(doc.Environments, name)
	return r.save(doc)
}

// List returns all records sorted by name.
func (r *Registry) List() ([]Environment, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]Environment, 0, len(doc.Environments))
	for _, env := range doc.Environments {
		out = append(out, env)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Names returns all environment names sorted.
func (r *Registry) Names() ([]string, error) {
	envs, err := r.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(envs))
	for i, env := range envs {
		names[i] = env.Name
	}
	return names, nil
}
