package buildsystem

import (
	"context"
	"time"

	"cargoscan/internal/project"
	"cargoscan/internal/scanner"
)

// BuildTarget is one runnable binary of the project.
type BuildTarget struct {
	Name           string
	DisplayName    string
	ExecutablePath string
	ProjectFile    string
	WorkingDir     string
	BuildKey       string
}

// Task is a named action offered to the host, one per binary.
type Task struct {
	Name        string
	Description string
}

// Phase is the scan state machine position.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseScanning
)

func (p Phase) String() string {
	if p == PhaseScanning {
		return "scanning"
	}
	return "idle"
}

// ParseState is what the host shows about the freshness of the target list.
type ParseState uint8

const (
	ParseNone   ParseState = iota // no scan finished yet
	ParseOK                       // targets reflect the last scan
	ParseStale                    // metadata failed; targets are from an earlier scan
	ParseFailed                   // toolchain missing; nothing can be scanned
)

func (s ParseState) String() string {
	switch s {
	case ParseOK:
		return "ok"
	case ParseStale:
		return "stale"
	case ParseFailed:
		return "failed"
	default:
		return "none"
	}
}

// State is a snapshot of the orchestrator.
type State struct {
	Phase       Phase
	Parse       ParseState
	Err         error
	ScanID      string
	DisplayName string
	LastScan    time.Time
}

// Change is delivered to OnChange listeners.
type Change struct {
	ScanID      string
	DisplayName string
	Targets     []BuildTarget
	Tasks       []Task
	Files       []string
	Parse       ParseState
	// Err is set when the scan failed; Targets and Tasks then hold the
	// previous values.
	Err error
}

// ScanResult is the outcome of a Scan call.
type ScanResult struct {
	ScanID string
	// Coalesced is true when the request was folded into a scan already in
	// flight, which will run once more after it finishes.
	Coalesced bool
	Changed   bool
	Duration  time.Duration
	Err       error
}

// Project is the host-facing view of one cargo project.
type Project interface {
	Scan(ctx context.Context) ScanResult
	RequestScan()
	NotifyManifestSaved()
	Targets() []BuildTarget
	Tasks() []Task
	OnChange(fn func(Change)) (unsubscribe func())
	State() State
	Tree() *scanner.Snapshot
	AddFiles(paths []string)
	RemoveFiles(paths []string)
	RenameFile(oldPath, newPath string)
	Settings() project.Settings
	Close() error
}
