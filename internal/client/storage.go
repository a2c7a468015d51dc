package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Storage is the client's local key/value store. Values in it are advisory
// and never used for access control.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// MemoryStorage is an in-memory Storage.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStorage returns a MemoryStorage holding initial.
func NewMemoryStorage(initial map[string]string) *MemoryStorage {
	m := &MemoryStorage{values: make(map[string]string, len(initial))}
	for k, v := range initial {
		m.values[k] = v
	}
	return m
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// FileStorage persists values as a JSON object in one file.
type FileStorage struct {
	path string
	mem  *MemoryStorage
	mu   sync.Mutex
}

// OpenFileStorage loads path, which may not exist yet.
func OpenFileStorage(path string) (*FileStorage, error) {
	values := map[string]string{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading state file: %w", err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("parsing state file %s: %w", path, err)
		}
	}
	return &FileStorage{path: path, mem: NewMemoryStorage(values)}, nil
}

func (f *FileStorage) Get(key string) (string, bool) {
	return f.mem.Get(key)
}

// Set stores the value and rewrites the file atomically.
func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mem.Set(key, value); err != nil {
		return err
	}

	f.mem.mu.Lock()
	data, err := json.MarshalIndent(f.mem.values, "", "  ")
	f.mem.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*")
	if err != nil {
		return fmt.Errorf("creating state file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
