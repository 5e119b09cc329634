// Package tasks reconciles smart lists into external playlists with real-time progress reporting.
//
// # Core Operations
//
// The [Refresher] interface defines two operations, implemented by [SyncEngine]:
//
//  1. [SyncEngine.Refresh] : Recompute and reconcile one list
//     - Skips disabled lists with a successful "disabled" result
//     - Validates the media-type filter and resolves the owner
//     - Pulls the owner's catalog restricted to the allowed kinds
//     - Composes source membership, manual includes and rule matches, subtracts ignores,
//     then orders and caps the result (see [composer.Composer.Build])
//     - Creates the external playlist when missing, otherwise replaces its membership and
//     updates its name and visibility
//
//  2. [SyncEngine.IsOrphaned] : Report whether the external playlist was deleted
//
// [SyncEngine.Preview] runs the same computation without writing anything.
//
// # Failure Semantics
//
// Refresh never returns an error. Failures produce a [models.SyncResult] with Success=false and
// leave the config untouched, so the next trigger can simply retry. A refresh that created a new
// playlist but failed to fill it deletes that playlist again.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for
// rendering. Updates use select with default to prevent blocking.
package tasks
