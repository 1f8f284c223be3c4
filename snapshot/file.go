package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore keeps the snapshot as one JSON object in a file. There is no
// locking: concurrent runs against the same file race on the final write.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore returns a FileStore at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) Map {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("snapshot: read failed, starting empty", "path", s.path, "error", err)
		}
		return Map{}
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Map{}
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn("snapshot: malformed state, starting empty", "path", s.path, "error", err)
		return Map{}
	}
	if m == nil {
		m = Map{}
	}
	return m
}

// Save writes m through a temp file and rename so a crash mid-write leaves
// the previous snapshot intact.
func (s *FileStore) Save(_ context.Context, m Map) error {
	if m == nil {
		m = Map{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("snapshot: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	s.logger.Debug("snapshot: saved", "path", s.path, "entries", len(m))
	return nil
}

func (s *FileStore) Close() error { return nil }
