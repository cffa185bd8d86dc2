package version

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestVersion_DefaultValues(t *testing.T) {
	if Version == "" {
		t.Error("Version should have a default value")
	}
}

func TestColored_PlainWhenColorDisabled(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	cases := map[string]string{
		"1.2.3":          "1.2.3",
		"0.1.0-dev":      "0.1.0-dev",
		"1.2.3+build.12": "1.2.3+build.12",
		"nightly":        "nightly",
	}
	for in, want := range cases {
		if got := Colored(in); got != want {
			t.Errorf("Colored(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInfo_String(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	origCommit, origDate := GitCommit, BuildDate
	defer func() { GitCommit, BuildDate = origCommit, origDate }()

	GitCommit = "abc123"
	BuildDate = "2024-01-15T10:30:00Z"
	s := Current().String()
	for _, part := range []string{"cargoscan " + Version, "(abc123)", "built 2024-01-15T10:30:00Z"} {
		if !strings.Contains(s, part) {
			t.Errorf("%q missing %q", s, part)
		}
	}

	GitCommit, BuildDate = "", ""
	if s := Current().String(); strings.Contains(s, "(") || strings.Contains(s, "built") {
		t.Errorf("optional fields rendered: %q", s)
	}
}
