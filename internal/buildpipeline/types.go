package buildpipeline

import (
	"time"

	"cargoscan/internal/diag"
	"cargoscan/internal/outparse"
)

// Stage describes a phase of a cargo invocation.
type Stage string

const (
	// StageResolve covers dependency resolution and downloads.
	StageResolve Stage = "resolve"
	// StageCompile covers crate compilation and checking.
	StageCompile Stage = "compile"
	// StageFinish is cargo's "Finished" summary.
	StageFinish Stage = "finish"
	// StageClean is a clean step removing build output.
	StageClean Stage = "clean"
	// StageBuild is the whole step from spawn to exit.
	StageBuild Stage = "build"
)

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the unit is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the unit is currently working.
	StatusWorking Status = "working"
	// StatusDone indicates the unit is done.
	StatusDone Status = "done"
	// StatusError indicates the unit failed.
	StatusError Status = "error"
)

// Event reports progress of a step. Unit is the crate cargo named in a
// progress line and is empty for step-level events. Line events carry the
// raw output; diagnostic events carry the parsed diagnostic.
type Event struct {
	Unit       string
	Stage      Stage
	Status     Status
	Channel    outparse.Channel
	Line       string
	Diagnostic *diag.Diagnostic
	Err        error
	Elapsed    time.Duration
}

// ProgressSink consumes progress events. OnEvent may be called from the
// stdout and stderr readers concurrently.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds stage durations.
type Timings struct {
	stages map[Stage]time.Duration
}

func (t *Timings) ensure() {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] = dur
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	if t.stages == nil {
		return false
	}
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	return t.stages[stage]
}

// Sum returns the sum of durations across the provided stages.
func (t Timings) Sum(stages ...Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	var total time.Duration
	for _, stage := range stages {
		total += t.stages[stage]
	}
	return total
}
