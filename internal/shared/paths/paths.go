package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// AppName is the directory name used under the config root
	AppName = "arcade"

	// ManifestFile is the default catalog file name
	ManifestFile = "manifest.json"

	// ConfigFile is the default orchestrator config file name
	ConfigFile = "ports.yaml"
)

// Lookup resolves a variable name during expansion
type Lookup func(key string) (string, bool)

// Env looks variables up in the process environment
func Env(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Overlay returns a lookup that prefers vars and then falls back
func Overlay(vars map[string]string, fallback Lookup) Lookup {
	return func(key string) (string, bool) {
		if v, ok := vars[key]; ok {
			return v, true
		}
		if fallback != nil {
			return fallback(key)
		}
		return "", false
	}
}

// Expand replaces $VAR / ${VAR} and a leading "~" in s.
// Unknown variables expand to the empty string, mirroring the shell.
func Expand(s string, lookup Lookup) string {
	if lookup == nil {
		lookup = Env
	}
	s = os.Expand(s, func(key string) string {
		v, _ := lookup(key)
		return v
	})
	return expandHome(s, lookup)
}

func expandHome(s string, lookup Lookup) string {
	if s != "~" && !strings.HasPrefix(s, "~/") && !strings.HasPrefix(s, `~\`) {
		return s
	}
	home, ok := lookup("HOME")
	if !ok || home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return s
		}
		home = h
	}
	return filepath.Join(home, s[1:])
}

// Executable expands exec and makes it absolute. Bare command names are
// looked up in PATH; relative paths are resolved against workdir.
func Executable(exec, workdir string, lookup Lookup) (string, error) {
	expanded := Expand(strings.TrimSpace(exec), lookup)
	if expanded == "" {
		return "", fmt.Errorf("empty executable")
	}

	if !strings.ContainsRune(expanded, filepath.Separator) && !strings.ContainsRune(expanded, '/') {
		found, err := lookPath(expanded)
		if err != nil {
			return "", fmt.Errorf("executable %q not found in PATH: %w", expanded, err)
		}
		expanded = found
	} else if !filepath.IsAbs(expanded) {
		base := Expand(workdir, lookup)
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("resolve working directory: %w", err)
			}
			base = wd
		}
		expanded = filepath.Join(base, expanded)
	}

	return filepath.Clean(expanded), nil
}

// Canonical returns the cleaned absolute path with symlinks resolved when
// the target exists.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// ConfigDir returns the orchestrator's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config")
	}
	return filepath.Join(home, ".config", AppName)
}

// DefaultManifestPath returns the catalog path used when none is configured
func DefaultManifestPath() string {
	return filepath.Join(ConfigDir(), ManifestFile)
}

// DefaultConfigPath returns the config file path used when none is configured
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), ConfigFile)
}
