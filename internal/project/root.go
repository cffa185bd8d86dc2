package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestName is the file that marks a Cargo project.
const ManifestName = "Cargo.toml"

// ErrManifestNotFound is returned when no Cargo.toml exists at or above a directory.
var ErrManifestNotFound = errors.New("no Cargo.toml found")

// FindManifest walks up from startDir to locate Cargo.toml.
func FindManifest(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// FindProjectRoot returns the directory containing Cargo.toml, if any.
func FindProjectRoot(startDir string) (root string, ok bool, err error) {
	manifestPath, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return "", ok, err
	}
	return filepath.Dir(manifestPath), true, nil
}

// ResolveManifest turns a user supplied path (file, directory, or empty) into
// an absolute manifest path.
func ResolveManifest(arg string) (string, error) {
	if arg == "" {
		arg = "."
	}
	info, err := os.Stat(arg)
	if err != nil {
		return "", fmt.Errorf("failed to stat %q: %w", arg, err)
	}
	if !info.IsDir() {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return "", err
		}
		return filepath.Clean(abs), nil
	}
	path, ok, err := FindManifest(arg)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w in %s or its parents", ErrManifestNotFound, arg)
	}
	return path, nil
}
