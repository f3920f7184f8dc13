// Package state persists the archive scheduler record so a job survives a
// restart. Two backends exist: a JSON file written atomically and a Redis key.
package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

const (
	// Subdirectory is the state directory inside the workspace.
	Subdirectory = "state"

	// Filename is the name of the persisted scheduler record.
	Filename = "gradual_archive_state.json"
)

// FileStore keeps the record in a single JSON file.
type FileStore struct {
	mu       sync.Mutex
	filePath string
	logger   *logger.Logger
}

// NewFileStore creates a store at <workspacePath>/state/gradual_archive_state.json.
func NewFileStore(workspacePath string, log *logger.Logger) *FileStore {
	return NewFileStoreAt(filepath.Join(workspacePath, Subdirectory, Filename), log)
}

// NewFileStoreAt creates a store writing to filePath.
func NewFileStoreAt(filePath string, log *logger.Logger) *FileStore {
	if log == nil {
		log = logger.Nop()
	}
	return &FileStore{filePath: filePath, logger: log.Component("state_file")}
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string {
	return s.filePath
}

// Load reads the record. It returns nil, nil when the file doesn't exist.
func (s *FileStore) Load(_ context.Context) (*archive.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read state file %s", s.filePath)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		s.logger.Error("failed to decode state file", err,
			logger.Field{Key: "file", Value: s.filePath})
		return nil, err
	}
	return rec, nil
}

// Save writes the record using atomic write: a temporary file is synced
// and then renamed over the actual file.
func (s *FileStore) Save(_ context.Context, rec *archive.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state record")
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create state directory %s", dir)
	}

	tmpPath := s.filePath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "create temporary state file")
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		file.Close()
		return errors.Wrap(err, "write temporary state file")
	}
	// data must reach the disk before the rename
	if err := file.Sync(); err != nil {
		file.Close()
		return errors.Wrap(err, "sync temporary state file")
	}
	if err := file.Close(); err != nil {
		return errors.Wrap(err, "close temporary state file")
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return errors.Wrapf(err, "rename %s", tmpPath)
	}

	s.logger.Debug("state saved",
		logger.Field{Key: "file", Value: s.filePath},
		logger.Field{Key: "state", Value: rec.Status.State})
	return nil
}

// Delete removes the file. A missing file is not an error.
func (s *FileStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filePath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove state file %s", s.filePath)
	}
	_ = os.Remove(s.filePath + ".tmp")
	return nil
}

func decodeRecord(data []byte) (*archive.Record, error) {
	var rec archive.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "decode state record")
	}
	if rec.Version > archive.RecordVersion {
		return nil, errors.Newf("state record version %d is newer than supported %d",
			rec.Version, archive.RecordVersion)
	}
	return &rec, nil
}
