// Package toolchain locates the cargo executable used for metadata queries
// and builds.
package toolchain

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrToolchainNotFound means no usable cargo executable could be resolved.
// It is fatal for every scan or build that needs the tool.
var ErrToolchainNotFound = errors.New("cargo toolchain not found")

// Options controls discovery. Empty fields fall through to the next source.
type Options struct {
	// Cargo is an explicit path to the cargo executable.
	Cargo string
	// Compiler is the configured rustc; cargo is looked up next to it.
	Compiler string
	// LookPath defaults to exec.LookPath.
	LookPath func(string) (string, error)
	// Stat defaults to os.Stat.
	Stat func(string) (os.FileInfo, error)
}

// Toolchain is a resolved cargo executable.
type Toolchain struct {
	Cargo  string
	Source string // "explicit", "compiler", "path"
}

// Discover resolves cargo: an explicit path wins, then cargo next to the
// configured compiler, then PATH.
func Discover(opts Options) (Toolchain, error) {
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	stat := opts.Stat
	if stat == nil {
		stat = os.Stat
	}

	if opts.Cargo != "" {
		if isExecutableFile(stat, opts.Cargo) {
			return Toolchain{Cargo: clean(opts.Cargo), Source: "explicit"}, nil
		}
		return Toolchain{}, fmt.Errorf("%w: %s is not an executable file", ErrToolchainNotFound, opts.Cargo)
	}

	if opts.Compiler != "" {
		candidate := filepath.Join(filepath.Dir(opts.Compiler), WithExecutableSuffix("cargo"))
		if isExecutableFile(stat, candidate) {
			return Toolchain{Cargo: clean(candidate), Source: "compiler"}, nil
		}
	}

	if p, err := lookPath("cargo"); err == nil && p != "" {
		return Toolchain{Cargo: clean(p), Source: "path"}, nil
	}
	return Toolchain{}, ErrToolchainNotFound
}

// WithExecutableSuffix appends ".exe" on Windows.
func WithExecutableSuffix(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func isExecutableFile(stat func(string) (os.FileInfo, error), path string) bool {
	info, err := stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

func clean(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
