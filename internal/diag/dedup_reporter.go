package diag

import (
	"strings"
	"sync"
)

type dedupKey struct {
	sev  Severity
	file string
	line int
	msg  string
}

func keyOf(d *Diagnostic) dedupKey {
	return dedupKey{
		sev:  d.Severity,
		file: d.File,
		line: d.Line,
		msg:  strings.Join(d.Message, "\n"),
	}
}

// DedupReporter wraps another Reporter and suppresses duplicate diagnostics
// with the same severity, location and message. Cargo repeats warnings when a
// crate is compiled for several targets. Safe for concurrent use.
type DedupReporter struct {
	mu   sync.Mutex
	next Reporter
	seen map[dedupKey]struct{}
}

// NewDedupReporter returns a Reporter that filters out duplicates while
// forwarding unique diagnostics to the provided reporter.
func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{
		next: next,
		seen: make(map[dedupKey]struct{}),
	}
}

func (r *DedupReporter) Report(d *Diagnostic) {
	if r == nil || d == nil {
		return
	}
	key := keyOf(d)
	r.mu.Lock()
	_, dup := r.seen[key]
	r.seen[key] = struct{}{}
	r.mu.Unlock()
	if dup {
		return
	}
	if r.next != nil {
		r.next.Report(d)
	}
}
