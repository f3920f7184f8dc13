package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexarchive/internal/config"
)

func TestEnsureLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	ws := New(config.WorkspaceConfig{Path: root})

	require.NoError(t, ws.EnsureLayout())
	for _, dir := range []string{"state", "exports", "logs"} {
		assert.DirExists(t, filepath.Join(root, dir))
	}
	// idempotent
	require.NoError(t, ws.EnsureLayout())
	assert.Equal(t, root, ws.Path())
	assert.Equal(t, root, ws.BasePath())
}

func TestEnsureDirErrors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.ErrorContains(t, New(config.WorkspaceConfig{Path: file}).EnsureDir(), "not a directory")
	assert.ErrorContains(t, New(config.WorkspaceConfig{}).EnsureDir(), "workspace path is empty")

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "state"), nil, 0o644))
	ws := New(config.WorkspaceConfig{Path: root})
	assert.ErrorContains(t, ws.EnsureSubpath("state"), "not a directory")
	assert.ErrorContains(t, ws.EnsureSubpath(""), "subdirectory name is empty")
}

func TestResolvePath(t *testing.T) {
	root := t.TempDir()
	ws := New(config.WorkspaceConfig{Path: root})

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"relative", "exports/chat.html", filepath.Join(root, "exports", "chat.html"), false},
		{"absolute", "/srv/../srv/data.db", "/srv/data.db", false},
		{"inner dots", "a/../b", filepath.Join(root, "b"), false},
		{"escape", "../outside", "", true},
		{"parent", "..", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ws.ResolvePath(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, filepath.Join(home, ".nexarchive"), expandHome("~/.nexarchive"))
	assert.Equal(t, "~user/x", expandHome("~user/x"))
	assert.Equal(t, "/abs", expandHome("/abs"))
}
