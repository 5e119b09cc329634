// Package repositories persists smart list configurations and the refresh run history.
//
// Key Implementations:
//   - [SmartListRepository] : one JSON document per smart list in the owner's partition of a [store.DocumentStore]
//   - [RunRepository] : SQLite log of refresh outcomes with sequence numbers for stable ordering
//
// Deleting a smart list cascades to the owner's ignores for that list.
//
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
