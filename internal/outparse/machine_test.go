package outparse

import (
	"strings"
	"testing"

	"cargoscan/internal/diag"
)

func splitInput(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

func TestLineStateMachinePassThrough(t *testing.T) {
	m := NewLineStateMachine("")
	res, d := m.Feed("Sometext")
	if res != NotHandled || d != nil {
		t.Fatalf("Feed(Sometext) = %v, %v; want NotHandled, nil", res, d)
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %v, want idle", m.State())
	}
	res, _ = m.Feed("")
	if res != NotHandled {
		t.Fatalf("blank line while idle = %v, want NotHandled", res)
	}
}

func TestLineStateMachineScenarios(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		sev      diag.Severity
		code     string
		message  string
		file     string
		line     int
		linkText []string
	}{
		{
			name:    "error without location",
			input:   "error: aborting due to previous error\n\n",
			sev:     diag.SevError,
			message: "error: aborting due to previous error",
		},
		{
			name:     "warning with location",
			input:    "warning: foo\n   --> src/a.rs:10:5\n\n",
			sev:      diag.SevWarning,
			message:  "warning: foo\n   --> src/a.rs:10:5",
			file:     "src/a.rs",
			line:     10,
			linkText: []string{"src/a.rs"},
		},
		{
			name:     "error code captured",
			input:    "error[E0308]: mismatched types\n --> src/main.rs:4:18\n\n",
			sev:      diag.SevError,
			code:     "E0308",
			message:  "error[E0308]: mismatched types\n --> src/main.rs:4:18",
			file:     "src/main.rs",
			line:     4,
			linkText: []string{"src/main.rs"},
		},
		{
			name:    "unparsable line number degrades to zero",
			input:   "error: huge\n  --> src/a.rs:99999999999999999999999:1\n\n",
			sev:     diag.SevError,
			message: "error: huge\n  --> src/a.rs:99999999999999999999999:1",
			file:    "src/a.rs",
			line:    0,
			linkText: []string{
				"src/a.rs",
			},
		},
		{
			name:    "non-whitespace before arrow is not a location",
			input:   "warning: w\nfoo--> src/b.rs:1:1\n\n",
			sev:     diag.SevWarning,
			message: "warning: w\nfoo--> src/b.rs:1:1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLines("", Stderr, splitInput(tt.input))
			if len(got) != 1 {
				t.Fatalf("got %d diagnostics, want 1", len(got))
			}
			d := got[0]
			if d.Severity != tt.sev {
				t.Errorf("severity = %v, want %v", d.Severity, tt.sev)
			}
			if d.Code != tt.code {
				t.Errorf("code = %q, want %q", d.Code, tt.code)
			}
			if d.Text() != tt.message {
				t.Errorf("message = %q, want %q", d.Text(), tt.message)
			}
			if d.File != tt.file || d.Line != tt.line {
				t.Errorf("location = %s:%d, want %s:%d", d.File, d.Line, tt.file, tt.line)
			}
			if len(d.Links) != len(tt.linkText) {
				t.Fatalf("links = %d, want %d", len(d.Links), len(tt.linkText))
			}
			for i, want := range tt.linkText {
				if got := d.LinkText(d.Links[i]); got != want {
					t.Errorf("link %d text = %q, want %q", i, got, want)
				}
			}
		})
	}
}

func TestFirstLocationWins(t *testing.T) {
	input := "warning: stripping a prefix manually\n" +
		"   --> src/cargo/core/compiler/custom_build.rs:353:56\n" +
		"    |\n" +
		"note: the prefix was tested here\n" +
		"   --> src/cargo/core/compiler/custom_build.rs:352:21\n" +
		"\n"
	got := ParseLines("", Stderr, splitInput(input))
	if len(got) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(got))
	}
	if got[0].Line != 353 {
		t.Fatalf("line = %d, want 353 (first location)", got[0].Line)
	}
	if len(got[0].Links) != 2 {
		t.Fatalf("links = %d, want 2", len(got[0].Links))
	}
}

func TestFlushEmitsPendingBlock(t *testing.T) {
	m := NewLineStateMachine("")
	m.Feed("error: unterminated")
	m.Feed("  --> src/lib.rs:2:3")
	if m.State() != StateAccumulating || m.PendingSeverity() != diag.SevError {
		t.Fatalf("state = %v/%v, want accumulating error", m.State(), m.PendingSeverity())
	}
	d := m.Flush()
	if d == nil || d.Line != 2 {
		t.Fatalf("Flush() = %+v, want diagnostic at line 2", d)
	}
	if m.Flush() != nil {
		t.Fatalf("second Flush should be empty")
	}
}

func TestWorkDirResolvesRelativeLocations(t *testing.T) {
	got := ParseLines("/usr/src", Stderr, []string{
		"warning: x",
		"   --> crates/a/src/lib.rs:7:1",
		"",
	})
	if len(got) != 1 {
		t.Fatalf("got %d diagnostics", len(got))
	}
	if got[0].File != "/usr/src/crates/a/src/lib.rs" {
		t.Fatalf("file = %q", got[0].File)
	}
	if want := "file:///usr/src/crates/a/src/lib.rs#7:1"; got[0].Links[0].Target != want {
		t.Fatalf("target = %q, want %q", got[0].Links[0].Target, want)
	}
	// the link still covers the text as printed
	if txt := got[0].LinkText(got[0].Links[0]); txt != "crates/a/src/lib.rs" {
		t.Fatalf("link text = %q", txt)
	}
}

func TestHandleLink(t *testing.T) {
	if !HandleLink("https://rust-lang.github.io/rust-clippy/") {
		t.Fatalf("expected https link to be handled")
	}
	if HandleLink("file:///usr/src/a.rs#1:1") {
		t.Fatalf("file links are resolved by the host, not opened externally")
	}
}

func TestFileURI(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/usr/src/a.rs", "file:///usr/src/a.rs#3:4"},
		{"src/a.rs", "file:src/a.rs#3:4"},
	}
	for _, tt := range tests {
		if got := FileURI(tt.path, 3, 4); got != tt.want {
			t.Errorf("FileURI(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
