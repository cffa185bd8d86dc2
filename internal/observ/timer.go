// Package observ measures the phases of a scan or build.
package observ

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Phase records the duration of one step such as "metadata" or "walk".
type Phase struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
}

// Timer tracks phases that may run concurrently. The zero value is not
// usable; call NewTimer.
type Timer struct {
	mu      sync.Mutex
	started time.Time
	phases  []Phase
}

// NewTimer creates a new empty Timer.
func NewTimer() *Timer {
	return &Timer{started: time.Now(), phases: make([]Phase, 0, 8)}
}

// Begin starts a new phase and returns its index.
func (t *Timer) Begin(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = append(t.phases, Phase{Name: name, Start: time.Now()})
	return len(t.phases) - 1
}

// End finishes a phase by its index.
func (t *Timer) End(idx int, note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.phases) {
		return
	}
	p := &t.phases[idx]
	p.Dur = time.Since(p.Start)
	p.Note = note
}

// Measure runs fn as a named phase.
func (t *Timer) Measure(name string, fn func() error) error {
	idx := t.Begin(name)
	err := fn()
	note := ""
	if err != nil {
		note = err.Error()
	}
	t.End(idx, note)
	return err
}

// PhaseReport is the serialized form of a phase.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report is the aggregate over all phases. WallMS is the time since
// NewTimer; it is smaller than the sum of phases when phases overlap.
type Report struct {
	WallMS float64       `json:"wall_ms"`
	Phases []PhaseReport `json:"phases"`
}

// Report snapshots the recorded phases.
func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	report := Report{
		WallMS: durationToMillis(time.Since(t.started)),
		Phases: make([]PhaseReport, len(t.phases)),
	}
	for i, phase := range t.phases {
		report.Phases[i] = PhaseReport{
			Name:       phase.Name,
			DurationMS: durationToMillis(phase.Dur),
			Note:       phase.Note,
		}
	}
	return report
}

// Summary returns a human-readable table of the phases.
func (t *Timer) Summary() string {
	report := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, p := range report.Phases {
		fmt.Fprintf(&sb, "  %-20s %9.2f ms", p.Name, p.DurationMS)
		if p.Note != "" {
			sb.WriteString("  // " + p.Note)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "  %-20s %9.2f ms\n", "wall", report.WallMS)
	return sb.String()
}

// LogValue renders the phases as a slog group of millisecond values.
func (t *Timer) LogValue() slog.Value {
	report := t.Report()
	attrs := make([]slog.Attr, 0, len(report.Phases)+1)
	for _, p := range report.Phases {
		attrs = append(attrs, slog.Float64(p.Name+"_ms", p.DurationMS))
	}
	attrs = append(attrs, slog.Float64("wall_ms", report.WallMS))
	return slog.GroupValue(attrs...)
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
