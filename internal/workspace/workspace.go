// Package workspace manages the nexarchive data directory.
//
// Layout:
//   - archive.db: SQLite archive of stored messages
//   - state/: persisted scheduler record
//   - exports/: HTML and Markdown exports
//   - logs/: log files when logging.output points there
//   - .nexarchive.sock, nexarchive.pid: control socket and PID file of the daemon
package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/config"
	"github.com/aatumaykin/nexarchive/internal/constants"
)

// Workspace represents the data directory with path management capabilities.
type Workspace struct {
	path     string // Expanded workspace path
	basePath string // Original path from config (may contain ~)
}

// New creates a new Workspace from the given configuration.
func New(cfg config.WorkspaceConfig) *Workspace {
	return &Workspace{
		path:     expandHome(cfg.Path),
		basePath: cfg.Path,
	}
}

// Path returns the expanded workspace path.
func (w *Workspace) Path() string {
	return w.path
}

// BasePath returns the original path from config (may contain ~).
func (w *Workspace) BasePath() string {
	return w.basePath
}

// EnsureDir creates the workspace directory if it doesn't exist.
func (w *Workspace) EnsureDir() error {
	if w.path == "" {
		return errors.New("workspace path is empty")
	}

	info, err := os.Stat(w.path)
	if err == nil {
		if !info.IsDir() {
			return errors.Newf("workspace path exists but is not a directory: %s", w.path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to access workspace path %s", w.path)
	}

	if err := os.MkdirAll(w.path, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create workspace directory %s", w.path)
	}
	return nil
}

// EnsureLayout creates the workspace and its standard subdirectories.
func (w *Workspace) EnsureLayout() error {
	for _, dir := range []string{constants.StateDir, constants.ExportsDir, constants.LogsDir} {
		if err := w.EnsureSubpath(dir); err != nil {
			return err
		}
	}
	return nil
}

// ResolvePath resolves a path relative to the workspace. Absolute paths are
// returned cleaned; relative paths must stay inside the workspace.
func (w *Workspace) ResolvePath(relPath string) (string, error) {
	if relPath == "" {
		return "", errors.New("path is empty")
	}
	if filepath.IsAbs(relPath) {
		return filepath.Clean(relPath), nil
	}

	cleanPath := filepath.Clean(relPath)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return "", errors.Newf("path attempts to escape workspace: %s", relPath)
	}

	absWorkspace, err := filepath.Abs(w.path)
	if err != nil {
		return "", errors.Wrap(err, "failed to get absolute workspace path")
	}
	return filepath.Join(absWorkspace, cleanPath), nil
}

// Subpath returns a path for a standard workspace subdirectory.
func (w *Workspace) Subpath(name string) string {
	return filepath.Join(w.path, name)
}

// EnsureSubpath creates a subdirectory within the workspace if it doesn't exist.
func (w *Workspace) EnsureSubpath(name string) error {
	if err := w.EnsureDir(); err != nil {
		return errors.Wrap(err, "failed to ensure workspace")
	}
	if name == "" {
		return errors.New("subdirectory name is empty")
	}

	subpath := w.Subpath(name)
	info, err := os.Stat(subpath)
	if err == nil {
		if !info.IsDir() {
			return errors.Newf("subdirectory path exists but is not a directory: %s", subpath)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to access subdirectory %s", subpath)
	}

	if err := os.MkdirAll(subpath, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create subdirectory %s", subpath)
	}
	return nil
}

// expandHome expands ~ to the user's home directory.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' && (len(path) == 1 || path[1] == '/') {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if len(path) == 1 {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
