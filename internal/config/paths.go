package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".arbiter"

// Paths holds resolved filesystem paths for Arbiter data.
type Paths struct {
	Base   string // ~/.arbiter
	Config string // ~/.arbiter/config.yaml
	Logs   string // ~/.arbiter/logs
	Hooks  string // ~/.arbiter/hooks, working directory for hook commands
}

// ResolvePaths computes all standard paths from the home directory.
// If ARBITER_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("ARBITER_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Logs:   filepath.Join(base, "logs"),
		Hooks:  filepath.Join(base, "hooks"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Logs, p.Hooks}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
