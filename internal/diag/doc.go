// Package diag defines the diagnostic model produced by the output parser.
//
// # Data model
//
// Diagnostic is one compiler error or warning block as printed by cargo or
// rustc. It contains:
//
//   - Severity - Error or Warning, taken from the block's marker line.
//   - Code - the bracketed compiler code when present ("E0283").
//   - Message - the block's lines in arrival order, without the terminating
//     blank line. Text() joins them with "\n".
//   - File/Line - the first "--> file:line:col" location in the block, or
//     an empty file and line 0 when the block had none.
//   - Links - LinkSpan ranges (byte offset, length, target URI) into Text()
//     that a host can render as clickable.
//
// Diagnostics are immutable once emitted.
//
// # Emitting diagnostics
//
// Producers emit through a Reporter. BagReporter aggregates into a Bag,
// which supports sorting, counting and deduplication. DedupReporter and
// MultiReporter compose reporters.
//
// Package diag performs no formatting or IO; rendering lives in
// internal/diagfmt.
package diag
