package project

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// BuildOption selects the default compiler flags for a build configuration.
type BuildOption uint8

const (
	BuildOptionEmpty BuildOption = iota
	BuildOptionDebug
	BuildOptionRelease
)

func (o BuildOption) String() string {
	switch o {
	case BuildOptionDebug:
		return "debug"
	case BuildOptionRelease:
		return "release"
	default:
		return "empty"
	}
}

// ParseBuildOption accepts the names printed by String.
func ParseBuildOption(s string) (BuildOption, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "empty":
		return BuildOptionEmpty, nil
	case "debug":
		return BuildOptionDebug, nil
	case "release":
		return BuildOptionRelease, nil
	}
	return BuildOptionEmpty, fmt.Errorf("invalid build option %q (expected empty|debug|release)", s)
}

// Keys used by hosts that persist Settings as a flat key/value map.
const (
	KeyUserArgs           = "Cargo.BuildStep.UserCompilerOptions"
	KeyExcludedFiles      = "Cargo.Project.ExcludedFiles"
	KeyManifestPath       = "Cargo.BuildConfiguration.TargetManifest"
	KeyDefaultBuildOption = "Cargo.BuildConfiguration.DefaultBuildOptions"
)

// Settings is the host-owned project configuration. The host decides where
// it lives; cargoscan only reads and updates it.
type Settings struct {
	UserArgs           string      `msgpack:"user_args" yaml:"user_args"`
	ExcludedFiles      []string    `msgpack:"excluded_files" yaml:"excluded_files"`
	ManifestPath       string      `msgpack:"manifest_path" yaml:"manifest_path"`
	DefaultBuildOption BuildOption `msgpack:"default_build_option" yaml:"default_build_option"`
}

// Args splits UserArgs on '|' and drops empty entries.
func (s Settings) Args() []string {
	if s.UserArgs == "" {
		return nil
	}
	parts := strings.Split(s.UserArgs, "|")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SetArgs joins args with '|'.
func (s *Settings) SetArgs(args []string) {
	s.UserArgs = strings.Join(args, "|")
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	if s.ExcludedFiles != nil {
		out.ExcludedFiles = append([]string(nil), s.ExcludedFiles...)
	}
	return out
}

// ToMap renders the settings with the persisted keys.
func (s Settings) ToMap() map[string]any {
	excluded := make([]string, len(s.ExcludedFiles))
	copy(excluded, s.ExcludedFiles)
	return map[string]any{
		KeyUserArgs:           s.UserArgs,
		KeyExcludedFiles:      excluded,
		KeyManifestPath:       s.ManifestPath,
		KeyDefaultBuildOption: int(s.DefaultBuildOption),
	}
}

// FromMap reads settings written by ToMap. Missing keys keep zero values;
// values of the wrong type are an error.
func FromMap(m map[string]any) (Settings, error) {
	var s Settings
	if v, ok := m[KeyUserArgs]; ok {
		str, ok := v.(string)
		if !ok {
			return Settings{}, fmt.Errorf("%s: expected string, got %T", KeyUserArgs, v)
		}
		s.UserArgs = str
	}
	if v, ok := m[KeyExcludedFiles]; ok {
		switch list := v.(type) {
		case []string:
			s.ExcludedFiles = append([]string(nil), list...)
		case []any:
			for _, item := range list {
				str, ok := item.(string)
				if !ok {
					return Settings{}, fmt.Errorf("%s: expected string entries, got %T", KeyExcludedFiles, item)
				}
				s.ExcludedFiles = append(s.ExcludedFiles, str)
			}
		default:
			return Settings{}, fmt.Errorf("%s: expected list, got %T", KeyExcludedFiles, v)
		}
	}
	if v, ok := m[KeyManifestPath]; ok {
		str, ok := v.(string)
		if !ok {
			return Settings{}, fmt.Errorf("%s: expected string, got %T", KeyManifestPath, v)
		}
		s.ManifestPath = str
	}
	if v, ok := m[KeyDefaultBuildOption]; ok {
		n, err := toInt(v)
		if err != nil {
			return Settings{}, fmt.Errorf("%s: %w", KeyDefaultBuildOption, err)
		}
		if n < int(BuildOptionEmpty) || n > int(BuildOptionRelease) {
			return Settings{}, fmt.Errorf("%s: out of range: %d", KeyDefaultBuildOption, n)
		}
		s.DefaultBuildOption = BuildOption(n)
	}
	return s, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return safecast.Conv[int](n)
	case uint64:
		return safecast.Conv[int](n)
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return safecast.Conv[int](n)
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}
