// Package config provides configuration loading for the cargoscan CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cargoscan/internal/scanner"
)

// Config represents the complete cargoscan configuration
type Config struct {
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Scan      ScanConfig      `yaml:"scan"`
	Build     BuildConfig     `yaml:"build"`
	Cache     CacheConfig     `yaml:"cache"`
	History   HistoryConfig   `yaml:"history"`
	Output    OutputConfig    `yaml:"output"`

	// Sources lists the files merged into this config, lowest precedence first.
	Sources []string `yaml:"-"`
}

// ToolchainConfig locates cargo
type ToolchainConfig struct {
	// Cargo is an explicit cargo executable
	Cargo string `yaml:"cargo"`
	// Rustc is the configured compiler; cargo is looked up next to it
	Rustc string `yaml:"rustc"`
}

// ScanConfig configures tree synchronization
type ScanConfig struct {
	Debounce   time.Duration `yaml:"debounce"`
	Extensions []string      `yaml:"extensions"`
	Excludes   []string      `yaml:"excludes"`
	SkipDirs   []string      `yaml:"skip_dirs"`
}

// BuildConfig configures build steps
type BuildConfig struct {
	TargetDir      string `yaml:"target_dir"`
	MaxDiagnostics int    `yaml:"max_diagnostics"`
	// KeepDuplicates reports warnings cargo repeats for several targets
	// once per occurrence.
	KeepDuplicates bool `yaml:"keep_duplicates"`
}

// CacheConfig configures the project cache
type CacheConfig struct {
	// Dir defaults to $XDG_CACHE_HOME/cargoscan
	Dir      string `yaml:"dir"`
	Disabled bool   `yaml:"disabled"`
}

// HistoryConfig configures the build history database
type HistoryConfig struct {
	// DB defaults to history.db in the cache directory
	DB       string `yaml:"db"`
	Keep     int    `yaml:"keep"`
	Disabled bool   `yaml:"disabled"`
}

// OutputConfig configures terminal output
type OutputConfig struct {
	Color    string `yaml:"color"`
	UI       string `yaml:"ui"`
	PathMode string `yaml:"path_mode"`
	Context  int    `yaml:"context"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	f := scanner.DefaultFilter()
	return &Config{
		Scan: ScanConfig{
			Debounce:   scanner.DefaultDebounce,
			Extensions: f.Extensions,
			SkipDirs:   f.SkipDirs,
		},
		History: HistoryConfig{
			Keep: 200,
		},
		Output: OutputConfig{
			Color:    "auto",
			UI:       "auto",
			PathMode: "auto",
		},
	}
}

var triState = map[string]bool{"auto": true, "on": true, "off": true}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Scan.Debounce < 0 {
		return fmt.Errorf("scan.debounce must be non-negative")
	}
	for _, ext := range c.Scan.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("scan.extensions: %q must start with '.'", ext)
		}
	}
	if err := c.Filter().Validate(); err != nil {
		return fmt.Errorf("scan.excludes: %w", err)
	}
	if c.Build.MaxDiagnostics < 0 {
		return fmt.Errorf("build.max_diagnostics must be non-negative")
	}
	if c.History.Keep < 0 {
		return fmt.Errorf("history.keep must be non-negative")
	}
	if !triState[c.Output.Color] {
		return fmt.Errorf("output.color: invalid value %q (expected auto|on|off)", c.Output.Color)
	}
	if !triState[c.Output.UI] {
		return fmt.Errorf("output.ui: invalid value %q (expected auto|on|off)", c.Output.UI)
	}
	switch c.Output.PathMode {
	case "auto", "absolute", "relative", "basename":
	default:
		return fmt.Errorf("output.path_mode: invalid value %q", c.Output.PathMode)
	}
	if c.Output.Context < 0 {
		return fmt.Errorf("output.context must be non-negative")
	}
	return nil
}

// Filter builds the scanner filter described by Scan.
func (c *Config) Filter() scanner.Filter {
	return scanner.Filter{
		Extensions: append([]string(nil), c.Scan.Extensions...),
		Excludes:   append([]string(nil), c.Scan.Excludes...),
		SkipDirs:   append([]string(nil), c.Scan.SkipDirs...),
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Toolchain.Cargo != "" {
		c.Toolchain.Cargo = other.Toolchain.Cargo
	}
	if other.Toolchain.Rustc != "" {
		c.Toolchain.Rustc = other.Toolchain.Rustc
	}

	if other.Scan.Debounce != 0 {
		c.Scan.Debounce = other.Scan.Debounce
	}
	if other.Scan.Extensions != nil {
		c.Scan.Extensions = other.Scan.Extensions
	}
	// Excludes accumulate across layers.
	c.Scan.Excludes = append(c.Scan.Excludes, other.Scan.Excludes...)
	if other.Scan.SkipDirs != nil {
		c.Scan.SkipDirs = other.Scan.SkipDirs
	}

	if other.Build.TargetDir != "" {
		c.Build.TargetDir = other.Build.TargetDir
	}
	if other.Build.MaxDiagnostics != 0 {
		c.Build.MaxDiagnostics = other.Build.MaxDiagnostics
	}
	if other.Build.KeepDuplicates {
		c.Build.KeepDuplicates = true
	}

	if other.Cache.Dir != "" {
		c.Cache.Dir = other.Cache.Dir
	}
	if other.Cache.Disabled {
		c.Cache.Disabled = true
	}

	if other.History.DB != "" {
		c.History.DB = other.History.DB
	}
	if other.History.Keep != 0 {
		c.History.Keep = other.History.Keep
	}
	if other.History.Disabled {
		c.History.Disabled = true
	}

	if other.Output.Color != "" {
		c.Output.Color = other.Output.Color
	}
	if other.Output.UI != "" {
		c.Output.UI = other.Output.UI
	}
	if other.Output.PathMode != "" {
		c.Output.PathMode = other.Output.PathMode
	}
	if other.Output.Context != 0 {
		c.Output.Context = other.Output.Context
	}
}
