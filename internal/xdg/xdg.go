package xdg

import (
	"os"
	"path/filepath"
)

const appName = "rabbitlog"

// Dir returns the XDG directory for the application.
// It checks envVar first (e.g. XDG_CONFIG_HOME), falling back to ~/fallbackDot
// (e.g. .config). The result always has "/rabbitlog" appended.
func Dir(envVar, fallbackDot string) (string, error) {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallbackDot, appName), nil
}

// ConfigDir returns the directory holding config.toml.
func ConfigDir() (string, error) {
	return Dir("XDG_CONFIG_HOME", ".config")
}
