package diagfmt

import (
	"path/filepath"
	"strings"
)

func formatPath(path string, mode PathMode, base string) string {
	if path == "" {
		return ""
	}
	abs := path
	if !filepath.IsAbs(abs) && base != "" {
		abs = filepath.Join(base, abs)
	}
	abs = filepath.Clean(abs)

	switch mode {
	case PathModeAbsolute:
		return abs
	case PathModeBasename:
		return filepath.Base(abs)
	case PathModeRelative:
		if rel, ok := relativeTo(abs, base); ok {
			return rel
		}
		return abs
	default:
		if rel, ok := relativeTo(abs, base); ok && !strings.HasPrefix(rel, "..") {
			return rel
		}
		return abs
	}
}

func relativeTo(abs, base string) (string, bool) {
	if base == "" {
		return "", false
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
