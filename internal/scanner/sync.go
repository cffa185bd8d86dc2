package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrSuperseded is returned by Scan when a newer scan started before the
// walk finished. The older result is discarded.
var ErrSuperseded = errors.New("scan superseded")

// Reasons passed to Config.Trigger.
const (
	ReasonManifest   = "manifest"
	ReasonTree       = "tree"
	ReasonExclusions = "exclusions"
)

// Config configures a Synchronizer.
type Config struct {
	Root         string
	ManifestPath string
	Filter       Filter
	// Watcher may be nil for one-shot scans.
	Watcher Watcher
	// Trigger is called for every change that warrants a rescan. The caller
	// debounces.
	Trigger func(reason string)
	Logger  *slog.Logger
}

// SyncResult is the outcome of one Scan.
type SyncResult struct {
	Snapshot *Snapshot
	Delta    Delta
	// Changed is true when the file tree differs from the previous scan.
	Changed bool
}

// Synchronizer owns the current snapshot, the watch set, and the exclusion
// list of one project.
type Synchronizer struct {
	root     string
	manifest string
	filter   Filter
	watcher  Watcher
	trigger  func(string)
	logger   *slog.Logger
	walk     func(context.Context, string, Filter) (*Snapshot, error)

	mu         sync.Mutex
	current    *Snapshot
	excludes   []string
	gen        uint64
	cancelWalk context.CancelFunc
	closed     bool
}

// New creates a Synchronizer and starts watching the manifest file.
func New(cfg Config) (*Synchronizer, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	manifest := cfg.ManifestPath
	if manifest != "" {
		if manifest, err = filepath.Abs(manifest); err != nil {
			return nil, fmt.Errorf("resolve manifest: %w", err)
		}
	}
	if err := cfg.Filter.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trigger := cfg.Trigger
	if trigger == nil {
		trigger = func(string) {}
	}
	s := &Synchronizer{
		root:     root,
		manifest: manifest,
		filter:   cfg.Filter,
		watcher:  cfg.Watcher,
		trigger:  trigger,
		logger:   logger,
		walk:     Walk,
	}
	s.excludes = s.normalizeAll(cfg.Filter.Excludes)
	if s.watcher != nil && manifest != "" {
		if err := s.watcher.Add(manifest); err != nil {
			logger.Warn("failed to watch manifest", "path", manifest, "error", err)
		}
	}
	return s, nil
}

// Root returns the absolute project root.
func (s *Synchronizer) Root() string { return s.root }

// Current returns the last applied snapshot, or nil before the first scan.
func (s *Synchronizer) Current() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Scan walks the tree and applies the watch-set delta. A scan still walking
// when a newer one starts is cancelled and returns ErrSuperseded.
func (s *Synchronizer) Scan(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SyncResult{}, context.Canceled
	}
	s.gen++
	gen := s.gen
	if s.cancelWalk != nil {
		s.cancelWalk()
	}
	wctx, cancel := context.WithCancel(ctx)
	s.cancelWalk = cancel
	filter := s.filter.WithExcludes(s.excludes)
	s.mu.Unlock()
	defer cancel()

	snap, err := s.walk(wctx, s.root, filter)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed {
		return SyncResult{}, ErrSuperseded
	}
	s.cancelWalk = nil
	if err != nil {
		return SyncResult{}, fmt.Errorf("walk %s: %w", s.root, err)
	}

	delta := Diff(s.current, snap)
	s.applyWatches(delta)
	s.current = snap
	return SyncResult{Snapshot: snap, Delta: delta, Changed: delta.TreeChanged()}, nil
}

func (s *Synchronizer) applyWatches(d Delta) {
	if s.watcher == nil {
		return
	}
	for _, dir := range d.RemoveDirs {
		if err := s.watcher.Remove(dir); err != nil {
			s.logger.Debug("failed to unwatch directory", "path", dir, "error", err)
		}
	}
	for _, dir := range d.AddDirs {
		if err := s.watcher.Add(dir); err != nil {
			s.logger.Warn("failed to watch directory", "path", dir, "error", err)
		}
	}
}

// Run forwards relevant watcher events to the trigger until ctx is done or
// the watcher closes.
func (s *Synchronizer) Run(ctx context.Context) error {
	if s.watcher == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.watcher.Events():
			if !ok {
				return nil
			}
			if reason, ok := s.Classify(ev); ok {
				s.logger.Debug("change detected", "path", ev.Name, "op", ev.Op.String(), "reason", reason)
				s.trigger(reason)
			}
		case err, ok := <-s.watcher.Errors():
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// Classify decides whether ev warrants a rescan. Entries created or removed
// directly in the project root are ignored unless they are the manifest or
// a new directory, since cargo drops temporary files there while answering
// metadata queries.
func (s *Synchronizer) Classify(ev fsnotify.Event) (string, bool) {
	path := filepath.Clean(ev.Name)
	if ev.Op == fsnotify.Chmod {
		return "", false
	}
	if s.manifest != "" && path == s.manifest {
		return ReasonManifest, true
	}
	if path == s.root {
		return "", false
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	first, _, nested := strings.Cut(filepath.ToSlash(rel), "/")
	if slices.Contains(s.filter.SkipDirs, first) {
		return "", false
	}
	if !nested {
		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				return ReasonTree, true
			}
		}
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			if s.isWatchedDir(path) {
				return ReasonTree, true
			}
		}
		return "", false
	}
	return ReasonTree, true
}

func (s *Synchronizer) isWatchedDir(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	_, ok := s.current.Dirs[path]
	return ok
}

// AddFiles removes paths from the exclusion list and requests a rescan.
func (s *Synchronizer) AddFiles(paths []string) {
	s.mu.Lock()
	for _, p := range paths {
		s.excludes = without(s.excludes, s.normalize(p))
	}
	s.mu.Unlock()
	s.trigger(ReasonExclusions)
}

// RemoveFiles adds paths to the exclusion list and requests a rescan. The
// files themselves are left alone.
func (s *Synchronizer) RemoveFiles(paths []string) {
	s.mu.Lock()
	for _, p := range paths {
		s.excludes = with(s.excludes, s.normalize(p))
	}
	s.mu.Unlock()
	s.trigger(ReasonExclusions)
}

// RenameFile excludes oldPath, un-excludes newPath, and requests a rescan.
func (s *Synchronizer) RenameFile(oldPath, newPath string) {
	s.mu.Lock()
	s.excludes = with(s.excludes, s.normalize(oldPath))
	s.excludes = without(s.excludes, s.normalize(newPath))
	s.mu.Unlock()
	s.trigger(ReasonExclusions)
}

// SetExclusions replaces the exclusion list without triggering a rescan.
func (s *Synchronizer) SetExclusions(patterns []string) error {
	norm := s.normalizeAll(patterns)
	if err := s.filter.WithExcludes(norm).Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.excludes = norm
	s.mu.Unlock()
	return nil
}

// Exclusions returns the current exclusion list for persistence.
func (s *Synchronizer) Exclusions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.excludes)
}

// Close stops any walk in flight and releases the watcher.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cancelWalk != nil {
		s.cancelWalk()
		s.cancelWalk = nil
	}
	s.mu.Unlock()
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// normalize stores paths under the root as slash-separated relative paths
// so settings stay valid when the project moves.
func (s *Synchronizer) normalize(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(s.root, p); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
		return filepath.Clean(p)
	}
	return filepath.ToSlash(filepath.Clean(p))
}

func (s *Synchronizer) normalizeAll(ps []string) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		if n := s.normalize(p); n != "" {
			out = with(out, n)
		}
	}
	return out
}

func with(list []string, p string) []string {
	if p == "" || slices.Contains(list, p) {
		return list
	}
	return append(list, p)
}

func without(list []string, p string) []string {
	return slices.DeleteFunc(list, func(e string) bool { return e == p })
}
