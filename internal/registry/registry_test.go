package registry

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "registry.json"))
}

func sampleEnv(name string) Environment {
	return NewEnvironment(name, "/tmp/envs/"+name,
		[]RepoInstance{{Name: "backend", Branch: "main", WorktreePath: "/tmp/envs/" + name + "/backend"}},
		[]string{"AGENTS.md"},
		[]SymlinkEntry{{Source: "backend/shared", Target: "frontend/src/shared"}},
	)
}

func TestAddGetRemove(t *testing.T) {
	r := testRegistry(t)

	if _, err := r.Get("demo"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := r.Add(sampleEnv("demo")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	got, err := r.Get("demo")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "demo" || len(got.Repos) != 1 || got.Repos[0].Branch != "main" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.CreatedAt == "" {
		t.Fatal("record should carry a creation timestamp")
	}

	if err := r.Add(sampleEnv("demo")); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists on duplicate, got %v", err)
	}

	if err := r.Remove("demo"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := r.Remove("demo"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestListSorted(t *testing.T) {
	r := testRegistry(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Add(sampleEnv(name)); err != nil {
			t.Fatalf("Add(%s) error = %v", name, err)
		}
	}
	names, err := r.Names()
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
}

func TestPersistedShape(t *testing.T) {
	r := testRegistry(t)
	env := sampleEnv("demo")
	env.PR = &PRInfo{Number: 42, Title: "fix login", Author: "octocat", HeadRef: "fix/login", RepoName: "backend", URL: "https://github.com/org/backend/pull/42"}
	if err := r.Add(env); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	b, err := os.ReadFile(r.Path())
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("registry file is not valid JSON: %v", err)
	}
	if doc["version"].(float64) != 1 {
		t.Fatalf("expected version 1, got %v", doc["version"])
	}
	envs := doc["environments"].(map[string]any)
	rec := envs["demo"].(map[string]any)
	for _, key := range []string{"name", "path", "created_at", "repos", "generated_files", "symlinks", "pr_info"} {
		if _, ok := rec[key]; !ok {
			t.Fatalf("record missing key %q: %v", key, rec)
		}
	}
	repo := rec["repos"].([]any)[0].(map[string]any)
	if _, ok := repo["worktree_path"]; !ok {
		t.Fatal("repo entry missing worktree_path")
	}
}

func TestRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte(`{"version": 99, "environments": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(path)
	if _, err := r.List(); err == nil {
		t.Fatal("expected versioning error for unknown registry version")
	}
}

func TestMissingFileIsEmpty(t *testing.T) {
	r := testRegistry(t)
	envs, err := r.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(envs) != 0 {
		t.Fatalf("expected empty registry, got %d records", len(envs))
	}
}
