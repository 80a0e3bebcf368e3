package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfig = `# warren configuration

# Where base repositories are cloned (worktree sources).
# base_repos_dir: ~/.local/share/warren/repos

# Where environments are created.
# environments_dir: ~/warren-envs

# Repository catalog. The key is the repository name used in commands,
# rule conditions, and templates.
repositories: {}
  # backend:
  #   url: git@github.com:your-org/backend.git

# Templates rendered into new environments (Go text/template syntax).
templates: []
  # - source: ~/.config/warren/templates/AGENTS.md.tmpl
  #   destination: AGENTS.md
  #   # Optional: only render when these repos are present.
  #   # when: [backend, frontend]

# Static files copied verbatim.
copy_files: []
  # - source: ~/.config/warren/files/.editorconfig
  #   destination: .editorconfig
  #   # when: [backend]

# Symlinks created between repositories. The when condition is required.
symlinks: []
  # - source: backend/shared
  #   target: frontend/src/shared
  #   when: [backend, frontend]
`

// Init writes the default global config file, refusing to overwrite an
// existing one unless force is set. Returns the path written.
func Init(force bool) (string, error) {
	path := GlobalConfigPath()
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("configuration already exists at %s (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(ConfigDir(), "templates"), 0o755); err != nil {
		return "", fmt.Errorf("create templates dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}
