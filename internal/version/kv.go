package version

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// KV is the local persistence boundary: a string store keyed by fixed keys.
// A missing key is not an error; callers receive ok=false and treat the
// value as empty.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// MemoryKV is an in-memory KV for tests.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryKV creates an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

// Get returns the value for key, if present.
func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// FileKV persists each key as one file under a directory. Writes go through
// a temp file plus rename so a crash never leaves a torn value behind.
type FileKV struct {
	dir string
	mu  sync.Mutex
}

// NewFileKV creates a file-backed KV rooted at dir, creating it if needed.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FileKV{dir: dir}, nil
}

// Get reads the value stored for key. A missing file is a missing key.
func (f *FileKV) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes value for key atomically.
func (f *FileKV) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing %s: %w", key, err)
	}
	return nil
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}
