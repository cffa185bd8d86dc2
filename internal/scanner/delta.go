package scanner

import (
	"maps"
	"slices"
)

// Delta is the difference between two snapshots.
type Delta struct {
	AddDirs     []string
	RemoveDirs  []string
	AddFiles    []string
	RemoveFiles []string
	// Toggled lists files present in both snapshots whose Enabled flag
	// changed.
	Toggled []string
}

// Empty reports whether applying the delta would change nothing.
func (d Delta) Empty() bool {
	return len(d.AddDirs) == 0 && len(d.RemoveDirs) == 0 &&
		len(d.AddFiles) == 0 && len(d.RemoveFiles) == 0 && len(d.Toggled) == 0
}

// TreeChanged reports whether the file list differs.
func (d Delta) TreeChanged() bool {
	return len(d.AddFiles) > 0 || len(d.RemoveFiles) > 0 || len(d.Toggled) > 0
}

// Diff computes what changed from prev to next. A nil prev is an empty tree.
// All lists are sorted.
func Diff(prev, next *Snapshot) Delta {
	var d Delta
	var prevFiles, nextFiles map[string]FileEntry
	var prevDirs, nextDirs map[string]struct{}
	if prev != nil {
		prevFiles, prevDirs = prev.Files, prev.Dirs
	}
	if next != nil {
		nextFiles, nextDirs = next.Files, next.Dirs
	}

	d.AddDirs = minus(nextDirs, prevDirs)
	d.RemoveDirs = minus(prevDirs, nextDirs)
	d.AddFiles = minus(nextFiles, prevFiles)
	d.RemoveFiles = minus(prevFiles, nextFiles)
	for path, entry := range nextFiles {
		if old, ok := prevFiles[path]; ok && old.Enabled != entry.Enabled {
			d.Toggled = append(d.Toggled, path)
		}
	}
	slices.Sort(d.Toggled)
	return d
}

func minus[V any](a, b map[string]V) []string {
	var out []string
	for k := range maps.Keys(a) {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
