// Package trace records spans and point events for cargoscan's scans,
// builds, and watch loop.
//
// Enable tracing via command-line flags:
//
//	cargoscan watch --trace=- --trace-level=detail
//	cargoscan build --trace=build.ndjson --trace-mode=both
//
// Implementations:
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to a file or stderr
//   - RingTracer: in-memory circular buffer dumped when a scan fails
//   - MultiTracer: fan-out to several tracers
//
// Scopes from coarse to fine: ScopeDriver (CLI command, watch loop),
// ScopeScan (one scan or build), ScopePhase (fetch, walk, diff, apply),
// ScopeProcess (cargo invocations).
//
// Tracers travel through context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.StartSpan(ctx, trace.ScopePhase, "metadata")
//	defer span.End("")
package trace
