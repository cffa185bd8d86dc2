// Package metadata runs `cargo metadata` and extracts the project's own
// package from its JSON output.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"cargoscan/internal/trace"
)

// ErrMetadataUnavailable covers a failing metadata process, unparsable
// output, and output without a package for the requested manifest.
var ErrMetadataUnavailable = errors.New("cargo metadata unavailable")

// TargetKind is the first entry of a target's "kind" list.
type TargetKind string

const (
	KindBin         TargetKind = "bin"
	KindLib         TargetKind = "lib"
	KindRLib        TargetKind = "rlib"
	KindDyLib       TargetKind = "dylib"
	KindCDyLib      TargetKind = "cdylib"
	KindStaticLib   TargetKind = "staticlib"
	KindProcMacro   TargetKind = "proc-macro"
	KindExample     TargetKind = "example"
	KindTest        TargetKind = "test"
	KindBench       TargetKind = "bench"
	KindCustomBuild TargetKind = "custom-build"
)

// Target is one build target of a package.
type Target struct {
	Name       string
	Kind       TargetKind
	SourcePath string
}

// PackageMetadata is the project's package as reported by cargo. One value is
// produced per scan and never mutated afterwards.
type PackageMetadata struct {
	Name         string
	Version      string
	ManifestPath string
	Targets      []Target
}

// BinaryTargets returns the names of bin targets in cargo's order.
func (m *PackageMetadata) BinaryTargets() []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, t := range m.Targets {
		if t.Kind == KindBin {
			out = append(out, t.Name)
		}
	}
	return out
}

type rawDocument struct {
	Packages []rawPackage `json:"packages"`
}

type rawPackage struct {
	Name         string      `json:"name"`
	Version      string      `json:"version"`
	ManifestPath string      `json:"manifest_path"`
	Targets      []rawTarget `json:"targets"`
}

type rawTarget struct {
	Name    string   `json:"name"`
	Kind    []string `json:"kind"`
	SrcPath string   `json:"src_path"`
}

// Args returns the argument list for the metadata query.
func Args(manifestPath string) []string {
	return []string{
		"metadata",
		"--no-deps",
		"--offline",
		"--manifest-path=" + manifestPath,
		"--format-version=1",
	}
}

// Parse decodes cargo's JSON and returns the first package whose
// manifest_path equals manifestPath.
func Parse(data []byte, manifestPath string) (*PackageMetadata, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode output: %w", ErrMetadataUnavailable, err)
	}
	want := normalizePath(manifestPath)
	for _, pkg := range doc.Packages {
		if normalizePath(pkg.ManifestPath) != want {
			continue
		}
		out := &PackageMetadata{
			Name:         pkg.Name,
			Version:      pkg.Version,
			ManifestPath: pkg.ManifestPath,
			Targets:      make([]Target, 0, len(pkg.Targets)),
		}
		for _, t := range pkg.Targets {
			var kind TargetKind
			if len(t.Kind) > 0 {
				kind = TargetKind(t.Kind[0])
			}
			out.Targets = append(out.Targets, Target{Name: t.Name, Kind: kind, SourcePath: t.SrcPath})
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: no package with manifest_path %s", ErrMetadataUnavailable, manifestPath)
}

// normalizePath makes paths comparable across the NFC/NFD forms macOS may
// hand back.
func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	return norm.NFC.String(filepath.Clean(p))
}

// Fetcher invokes the metadata command.
type Fetcher struct {
	Tool   string
	Runner Runner
}

// NewFetcher returns a fetcher that runs tool through os/exec.
func NewFetcher(tool string) *Fetcher {
	return &Fetcher{Tool: tool, Runner: ExecRunner{}}
}

// Fetch runs `<tool> metadata ...` for manifestPath and parses the result.
// It blocks until the process exits; cancel ctx to kill it.
func (f *Fetcher) Fetch(ctx context.Context, manifestPath string) (*PackageMetadata, error) {
	if f == nil || f.Tool == "" {
		return nil, fmt.Errorf("%w: no tool configured", ErrMetadataUnavailable)
	}
	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
	}
	runner := f.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	pctx, span := trace.StartSpan(ctx, trace.ScopeProcess, "cargo metadata")
	res, err := runner.Run(pctx, Command{
		Name: f.Tool,
		Args: Args(abs),
		Dir:  filepath.Dir(abs),
	})
	span.WithExtra("stdout_bytes", strconv.Itoa(len(res.Stdout))).Fail(err).End("")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrMetadataUnavailable, ctxErr)
		}
		msg := strings.TrimSpace(string(res.Stderr))
		if msg == "" {
			return nil, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %w: %s", ErrMetadataUnavailable, err, msg)
	}
	return Parse(res.Stdout, abs)
}
