package project

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Manifest is the subset of Cargo.toml read without invoking cargo.
type Manifest struct {
	Path   string
	Root   string
	Config ManifestConfig
}

type ManifestConfig struct {
	Package   PackageConfig  `toml:"package"`
	Bin       []BinConfig    `toml:"bin"`
	Workspace *WorkspaceInfo `toml:"workspace"`
}

type PackageConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Edition string `toml:"edition"`
}

type BinConfig struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

type WorkspaceInfo struct {
	Members []string `toml:"members"`
}

// LoadManifest decodes a Cargo.toml. A manifest must declare either
// [package].name or a [workspace].
func LoadManifest(path string) (*Manifest, error) {
	var cfg ManifestConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	hasName := meta.IsDefined("package", "name") && strings.TrimSpace(cfg.Package.Name) != ""
	if !hasName && !meta.IsDefined("workspace") {
		return nil, fmt.Errorf("%s: missing [package].name", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		Path:   abs,
		Root:   filepath.Dir(abs),
		Config: cfg,
	}, nil
}

// IsWorkspace reports whether the manifest is a virtual or root workspace.
func (m *Manifest) IsWorkspace() bool {
	return m != nil && m.Config.Workspace != nil
}

// DisplayName is the package name, falling back to the directory name.
func (m *Manifest) DisplayName() string {
	if m == nil {
		return ""
	}
	if name := strings.TrimSpace(m.Config.Package.Name); name != "" {
		return name
	}
	return filepath.Base(m.Root)
}

// DeclaredBinaries lists binaries known from the manifest alone: explicit
// [[bin]] entries, or the implicit src/main.rs binary named after the package.
func (m *Manifest) DeclaredBinaries(exists func(string) bool) []string {
	if m == nil {
		return nil
	}
	if len(m.Config.Bin) > 0 {
		out := make([]string, 0, len(m.Config.Bin))
		for _, b := range m.Config.Bin {
			if b.Name != "" {
				out = append(out, b.Name)
			}
		}
		return out
	}
	if m.Config.Package.Name != "" && exists != nil && exists(filepath.Join(m.Root, "src", "main.rs")) {
		return []string{m.Config.Package.Name}
	}
	return nil
}
