package diag

import "sync"

// Reporter receives diagnostics as they are completed.
// Implementations: BagReporter, FuncReporter, MultiReporter, DedupReporter.
type Reporter interface {
	Report(d *Diagnostic)
}

// BagReporter collects diagnostics into a Bag. Safe for concurrent use.
type BagReporter struct {
	mu  sync.Mutex
	Bag *Bag
}

// NewBagReporter returns a reporter backed by a fresh bag.
func NewBagReporter(max int) *BagReporter {
	return &BagReporter{Bag: NewBag(max)}
}

func (r *BagReporter) Report(d *Diagnostic) {
	if r == nil || r.Bag == nil {
		return
	}
	r.mu.Lock()
	r.Bag.Add(d)
	r.mu.Unlock()
}

// Snapshot returns a copy of the collected diagnostics.
func (r *BagReporter) Snapshot() []*Diagnostic {
	if r == nil || r.Bag == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Diagnostic, len(r.Bag.items))
	copy(out, r.Bag.items)
	return out
}

// FuncReporter adapts a function to Reporter.
type FuncReporter func(d *Diagnostic)

func (f FuncReporter) Report(d *Diagnostic) {
	if f != nil {
		f(d)
	}
}

// MultiReporter fans a diagnostic out to several reporters in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(d *Diagnostic) {
	for _, r := range m {
		if r != nil {
			r.Report(d)
		}
	}
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) Report(*Diagnostic) {}
