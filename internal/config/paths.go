package config

import (
	"os"
	"path/filepath"
)

// DataDir is where warren keeps durable state: base repository clones,
// the environment registry, and the operation journal. Honors
// XDG_DATA_HOME.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "warren")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warren"
	}
	return filepath.Join(home, ".local", "share", "warren")
}

// ConfigDir is where the global config and its template sources live.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "warren")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warren"
	}
	return filepath.Join(home, ".config", "warren")
}

// GlobalConfigPath is the default config file location.
func GlobalConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// RegistryPath is the environment registry file location.
func RegistryPath() string {
	return filepath.Join(DataDir(), "registry.json")
}
