package scanner

import (
	"context"
	"io/fs"
	"maps"
	"path/filepath"
	"slices"
)

// FileEntry is one file of the project tree.
type FileEntry struct {
	// Enabled is false for files that are shown but are not build inputs.
	Enabled bool
}

// Snapshot is the result of one walk. Paths are absolute and cleaned.
type Snapshot struct {
	Root  string
	Files map[string]FileEntry
	// Dirs is the watch set: the root plus every directory holding a file.
	Dirs map[string]struct{}
}

func newSnapshot(root string) *Snapshot {
	return &Snapshot{
		Root:  root,
		Files: make(map[string]FileEntry),
		Dirs:  map[string]struct{}{root: {}},
	}
}

// Paths returns the file paths in lexical order.
func (s *Snapshot) Paths() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.Files))
}

// EnabledPaths returns the paths of enabled files in lexical order.
func (s *Snapshot) EnabledPaths() []string {
	var out []string
	for _, p := range s.Paths() {
		if s.Files[p].Enabled {
			out = append(out, p)
		}
	}
	return out
}

// DirList returns the watch set in lexical order.
func (s *Snapshot) DirList() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.Dirs))
}

// Equal reports whether both snapshots describe the same tree.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Root == o.Root && maps.Equal(s.Files, o.Files) && maps.Equal(s.Dirs, o.Dirs)
}

// Walk scans root recursively. Unreadable subdirectories are skipped; an
// unreadable root or a cancelled ctx fails the walk.
func Walk(ctx context.Context, root string, filter Filter) (*Snapshot, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	m := filter.bind(root)
	snap := newSnapshot(root)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if m.skipDir(d.Name()) || m.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if m.excluded(rel) {
			return nil
		}
		snap.Files[path] = FileEntry{Enabled: m.enabled(d.Name())}
		snap.Dirs[filepath.Dir(path)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
