// Package config loads and validates the warren configuration file: the
// repository catalog plus the template, copy, and symlink rule catalogs.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LocalConfigName is the per-directory config file that, when present,
// completely overrides the global one.
const LocalConfigName = ".warren.yaml"

// RepoConfig describes one registered base repository.
type RepoConfig struct {
	URL string `yaml:"url"`
}

// TemplateRule renders a template source into an environment.
type TemplateRule struct {
	Source      string   `yaml:"source"`
	Destination string   `yaml:"destination"`
	When        []string `yaml:"when,omitempty"`
}

// CopyRule copies a static file into an environment verbatim.
type CopyRule struct {
	Source      string   `yaml:"source"`
	Destination string   `yaml:"destination"`
	When        []string `yaml:"when,omitempty"`
}

// SymlinkRule links target to source inside an environment, both paths
// relative to the environment root. The activation condition is required:
// a cross-repository link only makes sense when its repositories exist.
type SymlinkRule struct {
	Source string   `yaml:"source"`
	Target string   `yaml:"target"`
	When   []string `yaml:"when"`
}

// Config is the full warren configuration.
type Config struct {
	BaseReposDir    string                `yaml:"base_repos_dir,omitempty"`
	EnvironmentsDir string                `yaml:"environments_dir,omitempty"`
	Repositories    map[string]RepoConfig `yaml:"repositories,omitempty"`
	Templates       []TemplateRule        `yaml:"templates,omitempty"`
	CopyFiles       []CopyRule            `yaml:"copy_files,omitempty"`
	Symlinks        []SymlinkRule         `yaml:"symlinks,omitempty"`
}

func (r TemplateRule) Validate() error {
	if r.Source == "" || r.Destination == "" {
		return fmt.Errorf("template rule requires source and destination")
	}
	return validateRule(r.Destination, r.When, false)
}

func (r CopyRule) Validate() error {
	if r.Source == "" || r.Destination == "" {
		return fmt.Errorf("copy rule requires source and destination")
	}
	return validateRule(r.Destination, r.When, false)
}

func (r SymlinkRule) Validate() error {
	if r.Source == "" || r.Target == "" {
		return fmt.Errorf("symlink rule requires source and target")
	}
	if err := validateRelative(r.Source); err != nil {
		return err
	}
	return validateRule(r.Target, r.When, true)
}

func validateRule(dest string, when []string, whenRequired bool) error {
	if err := validateRelative(dest); err != nil {
		return err
	}
	if whenRequired && len(when) == 0 {
		return fmt.Errorf("rule for %s requires a non-empty when condition", dest)
	}
	for _, name := range when {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("rule for %s has an empty repository name in its when condition", dest)
		}
	}
	return nil
}

func validateRelative(p string) error {
	if filepath.IsAbs(p) {
		return fmt.Errorf("path %s must be relative to the environment root", p)
	}
	clean := filepath.Clean(p)
	if clean == "." || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("path %s escapes the environment root", p)
	}
	return nil
}

// Validate checks the whole configuration, filling directory defaults.
func (c *Config) Validate() error {
	if c.BaseReposDir == "" {
		c.BaseReposDir = filepath.Join(DataDir(), "repos")
	}
	if c.EnvironmentsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		c.EnvironmentsDir = filepath.Join(home, "warren-envs")
	}
	c.BaseReposDir = expandHome(c.BaseReposDir)
	c.EnvironmentsDir = expandHome(c.EnvironmentsDir)

	for name, repo := range c.Repositories {
		if repo.URL == "" {
			return fmt.Errorf("repository %s has no url", name)
		}
	}
	for i := range c.Templates {
		c.Templates[i].Source = expandHome(c.Templates[i].Source)
		if err := c.Templates[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.CopyFiles {
		c.CopyFiles[i].Source = expandHome(c.CopyFiles[i].Source)
		if err := c.CopyFiles[i].Validate(); err != nil {
			return err
		}
	}
	for _, s := range c.Symlinks {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads and validates the config at path. When path is empty the
// file is discovered: a local .warren.yaml wins over the global config.
func Load(path string) (Config, error) {
	if path == "" {
		found, err := FindConfigFile()
		if err != nil {
			return Config{}, err
		}
		path = found
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// An empty config file is a valid (all-defaults) config.
		if err.Error() != "EOF" {
			return Config{}, fmt.Errorf("parse yaml (%s): %w", filepath.Base(path), err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration (%s): %w", path, err)
	}
	return cfg, nil
}

// FindConfigFile locates the effective config file, preferring a local
// .warren.yaml in the working directory over the global file.
func FindConfigFile() (string, error) {
	wd, err := os.Getwd()
	if err == nil {
		local := filepath.Join(wd, LocalConfigName)
		if _, statErr := os.Stat(local); statErr == nil {
			return local, nil
		}
	}
	global := GlobalConfigPath()
	if _, err := os.Stat(global); err == nil {
		return global, nil
	}
	return "", fmt.Errorf("no configuration file found; run 'warren init' to create one at %s", global)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
