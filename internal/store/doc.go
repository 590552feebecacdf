// Package store provides the file-backed document store that holds
// translation history records.
//
// The store persists as an append-only log of JSON documents, one per line,
// in the format of the nedb embedded engine:
//
//	{"_id":"...","id":"...","sentence":"hello",...}
//	{"_id":"...","$$deleted":true}
//	{"$$indexCreated":{"fieldName":"id","unique":true,"sparse":true}}
//
// # Critical Patterns
//
// Read-Modify-Append:
//   - Update never patches bytes in place; it appends the full new version
//   - On load, later lines for the same _id supersede earlier ones
//   - Compact rewrites the file with only the live version of each document
//
// Deterministic Results:
//   - Find returns documents in insertion order, always
//   - Documents are deep-copied on the way in and out; callers never alias
//     store state
//
// Unique Indexes:
//   - Sparse: documents lacking the field are not indexed
//   - Checked before anything is appended; a violating write appends nothing
//
// No Multi-Call Atomicity:
//   - A single Update or Remove call appends its lines in one write
//   - Nothing spans two calls; callers must make multi-call sequences
//     idempotent
//
// The store is safe for concurrent use, but it assumes a single owning
// process per file.
package store
