package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Tracer receives trace events. Implementations must accept Emit from
// several goroutines: scans fetch and walk concurrently and a build reads
// stdout and stderr concurrently.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
	// Enabled is Level() > LevelOff.
	Enabled() bool
}

// StorageMode selects where events go: written as they happen, kept in
// memory for a dump after a failure, or both.
type StorageMode uint8

const (
	ModeStream StorageMode = iota + 1
	ModeRing
	ModeBoth
)

var modeNames = map[StorageMode]string{
	ModeStream: "stream",
	ModeRing:   "ring",
	ModeBoth:   "both",
}

func (m StorageMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseMode reads the --trace-mode flag.
func ParseMode(s string) (StorageMode, error) {
	s = strings.ToLower(s)
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return ModeRing, fmt.Errorf("invalid storage mode: %q (expected: stream|ring|both)", s)
}

// Config describes the tracer a command wants.
type Config struct {
	Level      Level
	Mode       StorageMode
	// FormatAuto picks NDJSON for *.ndjson and *.jsonl outputs.
	Format     Format
	// Output wins over OutputPath. OutputPath "" or "-" is stderr.
	Output     io.Writer
	OutputPath string
	// RingSize is the ring capacity in events; 0 means defaultRingSize.
	RingSize   int
}

// New builds the tracer for cfg. LevelOff yields Nop.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = defaultRingSize
	}
	ring := func() *RingTracer { return NewRingTracer(cfg.RingSize, cfg.Level) }
	stream := func() (*StreamTracer, error) {
		w, err := cfg.writer()
		if err != nil {
			return nil, err
		}
		return NewStreamTracer(w, cfg.Level, cfg.format()), nil
	}

	switch cfg.Mode {
	case ModeRing:
		return ring(), nil
	case ModeStream:
		return stream()
	case ModeBoth:
		s, err := stream()
		if err != nil {
			return nil, err
		}
		return NewMultiTracer(cfg.Level, s, ring()), nil
	}
	return nil, fmt.Errorf("unknown storage mode: %v", cfg.Mode)
}

func (cfg Config) format() Format {
	if cfg.Format != FormatAuto {
		return cfg.Format
	}
	if strings.HasSuffix(cfg.OutputPath, ".ndjson") || strings.HasSuffix(cfg.OutputPath, ".jsonl") {
		return FormatNDJSON
	}
	return FormatText
}

func (cfg Config) writer() (io.Writer, error) {
	switch {
	case cfg.Output != nil:
		return cfg.Output, nil
	case cfg.OutputPath == "" || cfg.OutputPath == "-":
		return os.Stderr, nil
	}
	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("open trace output: %w", err)
	}
	return f, nil
}

// RingOf returns the ring behind t, or nil when t keeps no ring.
func RingOf(t Tracer) *RingTracer {
	switch v := t.(type) {
	case *RingTracer:
		return v
	case *MultiTracer:
		return v.Ring()
	}
	return nil
}
