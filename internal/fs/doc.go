// Package fs provides the filesystem seam for artifact writes.
//
// Every artifact the pipeline produces (match tables, diagnostics, fixtures)
// goes through [WriteAtomic]: the payload is written to a temp file in the
// target directory, synced, and renamed into place, so readers never observe
// a half-written artifact and a crashed run never leaves a truncated output
// that a later run would mistake for a reusable result.
//
//   - [LocalFS]: production implementation over the os package
//   - [FaultyFS]: test utility injecting write/sync/close failures
//
// The package intentionally has no context.Context parameters: local file
// operations are not interruptible at the syscall level.
package fs
