package watchdog

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/shared/paths"
	"github.com/GriffinCanCode/arcade/internal/supervisor"
)

var (
	// ErrWhitelistViolation is returned for executables outside the whitelist.
	ErrWhitelistViolation = errors.New("executable not whitelisted")
	// ErrUnsafeArgument is returned for arguments that fail sanitisation.
	ErrUnsafeArgument = errors.New("unsafe launch argument")
	// ErrUnresolved is returned when the executable cannot be located.
	ErrUnresolved = errors.New("executable not found")
)

// Guard turns catalog entries into launch specs, enforcing the whitelist
// and argument rules. An empty whitelist rejects every launch.
type Guard struct {
	patterns []string
	strict   bool
	env      paths.Lookup
}

// NewGuard compiles whitelist patterns. Patterns are doublestar globs over
// absolute paths and may use ~ and $VAR.
func NewGuard(whitelist []string, strict bool) (*Guard, error) {
	g := &Guard{strict: strict, env: paths.Env}
	for _, raw := range whitelist {
		pattern, err := canonicalPattern(paths.Expand(strings.TrimSpace(raw), paths.Env))
		if err != nil {
			return nil, err
		}
		if pattern != "" {
			g.patterns = append(g.patterns, pattern)
		}
	}
	return g, nil
}

// canonicalPattern resolves symlinks in the literal prefix of a pattern so
// it compares equal to canonical executable paths.
func canonicalPattern(pattern string) (string, error) {
	if pattern == "" {
		return "", nil
	}
	if !filepath.IsAbs(pattern) {
		return "", fmt.Errorf("whitelist pattern %q must be absolute", pattern)
	}
	pattern = filepath.ToSlash(filepath.Clean(pattern))
	if !doublestar.ValidatePattern(pattern) {
		return "", fmt.Errorf("invalid whitelist pattern %q", pattern)
	}

	base, rest := doublestar.SplitPattern(pattern)
	base = filepath.ToSlash(paths.Canonical(filepath.FromSlash(base)))
	if rest == "" || rest == "." {
		return base, nil
	}
	return strings.TrimSuffix(base, "/") + "/" + rest, nil
}

// Patterns returns the compiled whitelist.
func (g *Guard) Patterns() []string {
	return append([]string(nil), g.patterns...)
}

// Allowed reports whether a canonical executable path is whitelisted.
func (g *Guard) Allowed(path string) bool {
	path = filepath.ToSlash(path)
	for _, pattern := range g.patterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// Prepare resolves, checks and sanitises entry into a launch spec.
func (g *Guard) Prepare(entry manifest.Entry) (supervisor.Spec, error) {
	lookup := paths.Overlay(entry.Env, g.env)

	exe, err := paths.Executable(entry.Exec, entry.Workdir, lookup)
	if err != nil {
		return supervisor.Spec{}, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}
	canonical := paths.Canonical(exe)
	if !g.Allowed(canonical) {
		return supervisor.Spec{}, fmt.Errorf("%w: %s", ErrWhitelistViolation, canonical)
	}

	args, err := SanitizeArgs(entry.Args, lookup, g.strict)
	if err != nil {
		return supervisor.Spec{}, err
	}

	env := make(map[string]string, len(entry.Env))
	for key, value := range entry.Env {
		expanded := paths.Expand(value, g.env)
		if err := checkControl(expanded); err != nil {
			return supervisor.Spec{}, fmt.Errorf("env %s: %w", key, err)
		}
		env[key] = expanded
	}

	dir := paths.Expand(entry.Workdir, lookup)
	if dir == "" {
		dir = filepath.Dir(canonical)
	}

	return supervisor.Spec{
		GameID: entry.ID,
		Path:   canonical,
		Args:   args,
		Dir:    dir,
		Env:    env,
		TTY:    entry.TTY,
		Quit:   entry.Quit,

		Command: CommandLine(canonical, args),
	}, nil
}
