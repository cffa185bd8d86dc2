package scanner

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter decides which files belong to the project tree.
type Filter struct {
	// Extensions lists the suffixes of build-relevant files. Other files are
	// kept in the tree but disabled. Empty enables everything.
	Extensions []string
	// Excludes are doublestar patterns relative to the root, or absolute
	// paths. Matching files and directories are left out of the tree.
	Excludes []string
	// SkipDirs are directory base names never descended into.
	SkipDirs []string
}

// DefaultFilter enables Rust sources and TOML files and skips VCS and build
// output directories.
func DefaultFilter() Filter {
	return Filter{
		Extensions: []string{".toml", ".rs"},
		SkipDirs:   []string{".git", "target"},
	}
}

// Validate reports the first malformed exclusion pattern.
func (f Filter) Validate() error {
	for _, p := range f.Excludes {
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return nil
}

// WithExcludes returns a copy of f using the given exclusion list.
func (f Filter) WithExcludes(excludes []string) Filter {
	f.Excludes = slices.Clone(excludes)
	return f
}

// matcher is a Filter bound to a root directory.
type matcher struct {
	exts     []string
	patterns []string
	skip     map[string]struct{}
}

func (f Filter) bind(root string) matcher {
	m := matcher{
		exts: f.Extensions,
		skip: make(map[string]struct{}, len(f.SkipDirs)),
	}
	for _, d := range f.SkipDirs {
		m.skip[d] = struct{}{}
	}
	for _, p := range f.Excludes {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			rel, err := filepath.Rel(root, p)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			p = rel
		}
		m.patterns = append(m.patterns, filepath.ToSlash(filepath.Clean(p)))
	}
	return m
}

// excluded reports whether rel (slash separated, relative to root) matches
// an exclusion. Malformed patterns never match.
func (m matcher) excluded(rel string) bool {
	for _, p := range m.patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (m matcher) skipDir(name string) bool {
	_, ok := m.skip[name]
	return ok
}

func (m matcher) enabled(name string) bool {
	if len(m.exts) == 0 {
		return true
	}
	for _, ext := range m.exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
