package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store persists the security document with a monotonically increasing
// version. Reads always observe the latest persisted version as a consistent
// snapshot; a persist whose expected version is stale fails with
// ErrVersionConflict and changes nothing.
type Store interface {
	// Read returns a snapshot of the current document and its version.
	Read() (SecurityConfig, int64, error)

	// Persist atomically replaces the document, provided the current version
	// still equals expected, and returns the new version.
	Persist(cfg SecurityConfig, expected int64) (int64, error)

	// Subscribe registers a callback invoked after every successful persist.
	Subscribe(fn func())
}

// MemoryStore is an in-process Store used by tests and embedded setups.
type MemoryStore struct {
	mu      sync.RWMutex
	cfg     SecurityConfig
	version int64
	subs    []func()
}

// NewMemoryStore creates a memory store seeded with the given document at
// version 1, or an empty document at version 0.
func NewMemoryStore(initial SecurityConfig) *MemoryStore {
	s := &MemoryStore{cfg: initial.Clone()}
	if !initial.IsZero() {
		s.version = 1
	}
	return s
}

// Read returns a snapshot of the current document.
func (s *MemoryStore) Read() (SecurityConfig, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone(), s.version, nil
}

// Persist swaps in a new document if the version precondition holds.
func (s *MemoryStore) Persist(cfg SecurityConfig, expected int64) (int64, error) {
	s.mu.Lock()
	if s.version != expected {
		s.mu.Unlock()
		return 0, fmt.Errorf("expected version %d, have %d: %w", expected, s.version, ErrVersionConflict)
	}
	s.cfg = cfg.Clone()
	s.version++
	version := s.version
	subs := append([]func(){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
	return version, nil
}

// Subscribe registers a persist callback.
func (s *MemoryStore) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// fileEnvelope is the on-disk form of the document.
type fileEnvelope struct {
	Version  int64          `json:"version"`
	Security SecurityConfig `json:"security"`
}

// FileStore persists the security document as a single JSON file. Writes go
// to a temporary file in the same directory followed by a rename, so a
// reader of the file never observes a partially written document.
type FileStore struct {
	path string
	log  *slog.Logger

	mu      sync.RWMutex
	cfg     SecurityConfig
	version int64
	subs    []func()
}

// OpenFileStore opens or creates the document file at path. A missing file
// yields an empty document at version 0.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		log:  slog.With("component", "security-store"),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read security config: %w", err)
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse security config %s: %w", path, err)
	}
	s.cfg = env.Security
	s.version = env.Version
	return s, nil
}

// Read returns a snapshot of the current document.
func (s *FileStore) Read() (SecurityConfig, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone(), s.version, nil
}

// Persist writes the new document to disk and swaps it in. On any I/O
// failure the in-memory document is left unchanged and the error wraps
// ErrStoreUnavailable.
func (s *FileStore) Persist(cfg SecurityConfig, expected int64) (int64, error) {
	s.mu.Lock()
	if s.version != expected {
		s.mu.Unlock()
		return 0, fmt.Errorf("expected version %d, have %d: %w", expected, s.version, ErrVersionConflict)
	}

	env := fileEnvelope{Version: expected + 1, Security: cfg}
	if err := s.writeAtomic(env); err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.cfg = cfg.Clone()
	s.version = env.Version
	version := s.version
	subs := append([]func(){}, s.subs...)
	s.mu.Unlock()

	s.log.Debug("security config persisted", "version", version)
	for _, fn := range subs {
		fn()
	}
	return version, nil
}

// Subscribe registers a persist callback.
func (s *FileStore) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Reload re-reads the document file after an external edit notification.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("parse security config %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.cfg = env.Security
	s.version = env.Version
	subs := append([]func(){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
	return nil
}

func (s *FileStore) writeAtomic(env fileEnvelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".security-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
