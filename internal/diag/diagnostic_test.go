package diag

import (
	"sync"
	"testing"
)

func TestDiagnosticTextAndLinks(t *testing.T) {
	d := &Diagnostic{
		Severity: SevWarning,
		Message:  []string{"warning: foo", "   --> src/a.rs:10:5"},
		File:     "src/a.rs",
		Line:     10,
		Links:    []LinkSpan{{Start: 20, Length: 12, Target: "file:///src/a.rs#10:5"}},
	}
	if got, want := d.Text(), "warning: foo\n   --> src/a.rs:10:5"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
	if got := d.LinkText(d.Links[0]); got != "src/a.rs:10:" {
		t.Fatalf("LinkText = %q", got)
	}
	if got := d.LinkText(LinkSpan{Start: 100, Length: 2}); got != "" {
		t.Fatalf("out of range LinkText = %q, want empty", got)
	}
	if got := d.Location(); got != "src/a.rs:10" {
		t.Fatalf("Location() = %q", got)
	}
}

func TestDiagnosticEqual(t *testing.T) {
	a := &Diagnostic{Severity: SevError, Message: []string{"error: x"}}
	b := &Diagnostic{Severity: SevError, Message: []string{"error: x"}}
	if !a.Equal(b) {
		t.Fatalf("expected equal diagnostics")
	}
	b.Line = 3
	if a.Equal(b) {
		t.Fatalf("expected different diagnostics")
	}
	var nilDiag *Diagnostic
	if !nilDiag.Equal(nil) {
		t.Fatalf("nil diagnostics should be equal")
	}
}

func TestBagLimitSortAndDedup(t *testing.T) {
	bag := NewBag(3)
	bag.Add(&Diagnostic{Severity: SevWarning, File: "b.rs", Line: 1, Message: []string{"w"}})
	bag.Add(&Diagnostic{Severity: SevError, File: "a.rs", Line: 2, Message: []string{"e"}})
	bag.Add(&Diagnostic{Severity: SevError, File: "a.rs", Line: 2, Message: []string{"e"}})
	if bag.Add(&Diagnostic{Severity: SevError}) {
		t.Fatalf("expected limit to reject fourth diagnostic")
	}
	if !bag.HasErrors() {
		t.Fatalf("expected errors")
	}
	bag.Dedup()
	if bag.Len() != 2 {
		t.Fatalf("Len after dedup = %d, want 2", bag.Len())
	}
	bag.Sort()
	if bag.Items()[0].File != "a.rs" {
		t.Fatalf("first item after sort = %q, want a.rs", bag.Items()[0].File)
	}
	if got := bag.Count(SevError); got != 1 {
		t.Fatalf("Count(SevError) = %d, want 1", got)
	}
}

func TestDedupReporter(t *testing.T) {
	collected := NewBagReporter(0)
	r := NewDedupReporter(collected)
	d := &Diagnostic{Severity: SevWarning, Message: []string{"warning: same"}}
	r.Report(d)
	r.Report(&Diagnostic{Severity: SevWarning, Message: []string{"warning: same"}})
	r.Report(&Diagnostic{Severity: SevWarning, Message: []string{"warning: other"}})
	if got := len(collected.Snapshot()); got != 2 {
		t.Fatalf("forwarded %d diagnostics, want 2", got)
	}
}

func TestDedupReporterConcurrent(t *testing.T) {
	collected := NewBagReporter(0)
	r := NewDedupReporter(collected)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				r.Report(&Diagnostic{Severity: SevWarning, Line: i % 10, Message: []string{"warning: repeated"}})
			}
		}()
	}
	wg.Wait()
	if got := len(collected.Snapshot()); got != 10 {
		t.Fatalf("forwarded %d diagnostics, want 10", got)
	}
}

func TestParseSeverity(t *testing.T) {
	tests := map[string]Severity{
		"error":   SevError,
		"warning": SevWarning,
		"note":    SevUnknown,
	}
	for in, want := range tests {
		if got := ParseSeverity(in); got != want {
			t.Errorf("ParseSeverity(%q) = %v, want %v", in, got, want)
		}
	}
}
