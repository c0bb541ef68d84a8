package watchdog

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/shared/paths"
)

func touchExec(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return paths.Canonical(path)
}

func TestGuardWhitelist(t *testing.T) {
	root := t.TempDir()
	games := filepath.Join(root, "games")
	allowed := touchExec(t, filepath.Join(games, "tetris", "bin", "tetris"))
	outside := touchExec(t, filepath.Join(root, "evil", "payload"))

	g, err := NewGuard([]string{filepath.Join(games, "**")}, true)
	require.NoError(t, err)

	t.Run("inside whitelist", func(t *testing.T) {
		spec, err := g.Prepare(manifest.Entry{ID: "tetris", Exec: allowed, Args: []string{"--fullscreen"}})
		require.NoError(t, err)
		assert.Equal(t, allowed, spec.Path)
		assert.Equal(t, []string{"--fullscreen"}, spec.Args)
		assert.Equal(t, filepath.Dir(allowed), spec.Dir)
		assert.Equal(t, "tetris", spec.GameID)
		assert.Equal(t, Quote(allowed)+" '--fullscreen'", spec.Command)
	})

	t.Run("outside whitelist", func(t *testing.T) {
		_, err := g.Prepare(manifest.Entry{ID: "evil", Exec: outside})
		assert.ErrorIs(t, err, ErrWhitelistViolation)
	})

	t.Run("dot dot escape", func(t *testing.T) {
		_, err := g.Prepare(manifest.Entry{ID: "evil", Exec: filepath.Join(games, "..", "evil", "payload")})
		assert.ErrorIs(t, err, ErrWhitelistViolation)
	})

	t.Run("env expansion", func(t *testing.T) {
		spec, err := g.Prepare(manifest.Entry{
			ID:   "tetris",
			Exec: "$GAMES/tetris/bin/tetris",
			Env:  map[string]string{"GAMES": games},
		})
		require.NoError(t, err)
		assert.Equal(t, allowed, spec.Path)
		assert.Equal(t, games, spec.Env["GAMES"])
	})

	t.Run("unresolvable", func(t *testing.T) {
		_, err := g.Prepare(manifest.Entry{ID: "ghost", Exec: "definitely-not-a-real-binary-xyz"})
		assert.ErrorIs(t, err, ErrUnresolved)
	})

	t.Run("unsafe args", func(t *testing.T) {
		_, err := g.Prepare(manifest.Entry{ID: "tetris", Exec: allowed, Args: []string{"--level", "1; rm -rf /"}})
		assert.ErrorIs(t, err, ErrUnsafeArgument)
	})
}

func TestGuardSymlinkOutOfWhitelist(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	games := filepath.Join(root, "games")
	outside := touchExec(t, filepath.Join(root, "evil", "payload"))
	require.NoError(t, os.MkdirAll(games, 0o755))
	link := filepath.Join(games, "innocent")
	require.NoError(t, os.Symlink(outside, link))

	g, err := NewGuard([]string{filepath.Join(games, "**")}, true)
	require.NoError(t, err)

	_, err = g.Prepare(manifest.Entry{ID: "innocent", Exec: link})
	assert.ErrorIs(t, err, ErrWhitelistViolation)
}

func TestGuardEmptyWhitelistRejectsAll(t *testing.T) {
	exe := touchExec(t, filepath.Join(t.TempDir(), "game"))

	g, err := NewGuard(nil, true)
	require.NoError(t, err)
	assert.Empty(t, g.Patterns())

	_, err = g.Prepare(manifest.Entry{ID: "game", Exec: exe})
	assert.ErrorIs(t, err, ErrWhitelistViolation)
}

func TestGuardExactPattern(t *testing.T) {
	exe := touchExec(t, filepath.Join(t.TempDir(), "bin", "notepad"))

	g, err := NewGuard([]string{exe}, true)
	require.NoError(t, err)
	assert.True(t, g.Allowed(exe))
	assert.False(t, g.Allowed(exe+"2"))
}

func TestNewGuardRejectsBadPatterns(t *testing.T) {
	_, err := NewGuard([]string{"relative/**"}, true)
	assert.Error(t, err)

	_, err = NewGuard([]string{"/opt/[games"}, true)
	assert.Error(t, err)
}

func TestSanitizeArgs(t *testing.T) {
	lookup := paths.Overlay(map[string]string{"LEVEL": "3", "NASTY": "a;b"}, func(string) (string, bool) { return "", false })

	tests := []struct {
		name   string
		args   []string
		strict bool
		want   []string
		err    bool
	}{
		{name: "plain", args: []string{"--fullscreen", "-w", "800"}, strict: true, want: []string{"--fullscreen", "-w", "800"}},
		{name: "expands entry env", args: []string{"--level=$LEVEL"}, strict: true, want: []string{"--level=3"}},
		{name: "unknown var is empty", args: []string{"--x=$MISSING"}, strict: true, want: []string{"--x="}},
		{name: "nul rejected", args: []string{"a\x00b"}, strict: false, err: true},
		{name: "newline rejected", args: []string{"a\nb"}, strict: false, err: true},
		{name: "pipe strict", args: []string{"a|b"}, strict: true, err: true},
		{name: "pipe lax", args: []string{"a|b"}, strict: false, want: []string{"a|b"}},
		{name: "substitution strict", args: []string{"$(reboot)"}, strict: true, err: true},
		{name: "backtick strict", args: []string{"`id`"}, strict: true, err: true},
		{name: "expanded meta strict", args: []string{"$NASTY"}, strict: true, err: true},
		{name: "unicode ok", args: []string{"记事本"}, strict: true, want: []string{"记事本"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeArgs(tt.args, lookup, tt.strict)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnsafeArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, `'/opt/games/tetris' '--name' 'it'"'"'s' ''`,
		CommandLine("/opt/games/tetris", []string{"--name", "it's", ""}))
}
