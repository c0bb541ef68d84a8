package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	lookup := Overlay(map[string]string{
		"HOME":       "/home/player",
		"GAMES_HOME": "/opt/games",
	}, nil)

	tests := []struct {
		in   string
		want string
	}{
		{"$GAMES_HOME/tetris", "/opt/games/tetris"},
		{"${GAMES_HOME}/tetris", "/opt/games/tetris"},
		{"~/games", filepath.Join("/home/player", "games")},
		{"~", "/home/player"},
		{"$MISSING/x", "/x"},
		{"plain", "plain"},
		{"a~b", "a~b"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.in, lookup))
		})
	}
}

func TestOverlayFallback(t *testing.T) {
	lookup := Overlay(map[string]string{"A": "1"}, func(key string) (string, bool) {
		if key == "B" {
			return "2", true
		}
		return "", false
	})

	v, ok := lookup("A")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	v, ok = lookup("B")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	_, ok = lookup("C")
	assert.False(t, ok)
}

func TestExecutable(t *testing.T) {
	dir := t.TempDir()
	lookup := Overlay(map[string]string{"GAMES": dir}, nil)

	got, err := Executable("$GAMES/bin/../bin/game", "", lookup)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bin", "game"), got)

	got, err = Executable("./game", dir, lookup)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "game"), got)

	_, err = Executable("   ", dir, lookup)
	assert.Error(t, err)
}

func TestExecutableSearchesPath(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(file string) (string, error) {
		return "/usr/bin/" + file, nil
	}

	got, err := Executable("notepad", "", Env)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/usr/bin/notepad"), got)
}

func TestCanonicalResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o755))
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	want, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	assert.Equal(t, want, Canonical(link))
}

func TestConfigDirHonoursXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", AppName), ConfigDir())
	assert.Equal(t, filepath.Join("/tmp/xdg", AppName, ManifestFile), DefaultManifestPath())
}
