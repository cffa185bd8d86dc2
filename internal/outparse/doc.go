// Package outparse turns streamed cargo/rustc output into diagnostics.
//
// Each output channel (stdout, stderr) owns a LineStateMachine. A machine is
// Idle until a marker line ("error: ...", "warning[...]: ...", or a
// "--> file:line:col" location) opens a block, accumulates every following
// non-blank line, and emits one diag.Diagnostic when a blank line (or Flush)
// closes the block. Lines seen while Idle that match no marker are
// NotHandled and belong to the caller.
//
// The machines never look ahead and never block, so feeding a stream one line
// at a time or all at once yields the same diagnostics.
package outparse
