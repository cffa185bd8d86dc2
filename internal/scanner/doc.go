// Package scanner keeps a project's file tree and directory watches in step
// with the filesystem.
//
// A scan walks the project root into a Snapshot, diffs it against the
// previous one, and applies only the resulting Delta to the Watcher. The
// watched directory set is always derived from the snapshot.
package scanner
