// Package cache persists the last known project settings and targets so a
// host can show targets before the first metadata scan completes.
package cache

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"cargoscan/internal/buildsystem"
	"cargoscan/internal/project"
)

// Current schema version, increment when Entry changes shape.
const schemaVersion uint16 = 1

// Store keeps one Entry per manifest under dir. Safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// Entry is the cached state of one project.
type Entry struct {
	Schema      uint16
	Manifest    string
	DisplayName string
	// Fingerprint covers Cargo.toml and Cargo.lock at save time.
	Fingerprint project.Digest
	Settings    project.Settings
	Targets     []buildsystem.BuildTarget
	SavedAt     time.Time
}

// DefaultDir returns $XDG_CACHE_HOME/<app>, falling back to ~/.cache/<app>.
func DefaultDir(app string) (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, app), nil
}

// Open creates dir if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) pathFor(key project.Digest) string {
	return filepath.Join(s.dir, "projects", key.String()+".mp")
}

// Put writes e for its manifest, replacing any previous entry atomically.
func (s *Store) Put(e *Entry) error {
	if s == nil || e == nil {
		return nil
	}
	if e.Manifest == "" {
		return errors.New("cache: entry has no manifest path")
	}
	e.Schema = schemaVersion
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pathFor(project.KeyFor(e.Manifest))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := msgpack.NewEncoder(f).Encode(e); err != nil {
		f.Close()
		return fmt.Errorf("cache: encode %s: %w", e.Manifest, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get loads the entry for manifest. A missing entry or one written with
// another schema reports ok=false without error.
func (s *Store) Get(manifest string) (*Entry, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.pathFor(project.KeyFor(manifest)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var e Entry
	if err := msgpack.NewDecoder(f).Decode(&e); err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", manifest, err)
	}
	if e.Schema != schemaVersion {
		return nil, false, nil
	}
	return &e, true, nil
}

// Delete removes the entry for manifest if present.
func (s *Store) Delete(manifest string) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.pathFor(project.KeyFor(manifest)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// DropAll invalidates every entry.
func (s *Store) DropAll() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := filepath.Join(s.dir, "projects.old-"+time.Now().Format("20060102150405"))
	if err := os.Rename(filepath.Join(s.dir, "projects"), old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(old)
}

// Fingerprint hashes the manifest and the lock file next to it. A missing
// lock file hashes as empty content.
func Fingerprint(manifest string) (project.Digest, error) {
	data, err := os.ReadFile(manifest)
	if err != nil {
		return project.Digest{}, err
	}
	lock, err := os.ReadFile(filepath.Join(filepath.Dir(manifest), "Cargo.lock"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return project.Digest{}, err
	}
	return project.Combine(sha256.Sum256(data), sha256.Sum256(lock)), nil
}

// Fresh reports whether e was saved for the current manifest and lock file.
func (e *Entry) Fresh() bool {
	if e == nil {
		return false
	}
	fp, err := Fingerprint(e.Manifest)
	return err == nil && fp == e.Fingerprint
}
