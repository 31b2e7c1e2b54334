package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Compile-time interface assertion.
var _ Sink = (*FileStore)(nil)

// FileStore is a [Sink] backed by a YAML document. Every successful update
// rewrites the file.
type FileStore struct {
	path string

	mu     sync.RWMutex
	values Values
}

// OpenFile loads the settings document at path. A missing file is not an
// error: the store starts from [Defaults] and creates the file on the first
// update.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, values: Defaults()}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("settings file not found, using defaults", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("settings: parse %q: %w", path, err)
	}
	if err := s.values.Validate(); err != nil {
		return nil, fmt.Errorf("settings: validate %q: %w", path, err)
	}
	return s, nil
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string { return s.path }

// UpdateParameter implements [Sink]. The in-memory value only changes when the
// file was written successfully.
func (s *FileStore) UpdateParameter(key Key, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.values
	if err := next.Set(key, value); err != nil {
		return err
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

// Parameter implements [Sink].
func (s *FileStore) Parameter(key Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Get(key)
}

// Values returns a copy of the stored parameters.
func (s *FileStore) Values() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}

// write replaces the file atomically via a sibling temp file.
func (s *FileStore) write(v Values) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("settings: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: write %q: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close %q: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("settings: replace %q: %w", s.path, err)
	}
	return nil
}
