// Package migrate applies ordered schema and data migrations to the history
// store before it is used.
//
// A migration is a tagged value in a registry, not a type hierarchy:
//
//	Migration{Priority: 2, Name: "AddIdentifierMigration", Kind: KindRecordBackfill,
//	          Select: store.Missing("id"), Update: deriveID}
//
// Two kinds exist:
//   - KindStoreLevel: one operation on the whole store (e.g. create an index)
//   - KindRecordBackfill: a select predicate plus a per-document patch; the
//     predicate must stop matching a document once it has been patched, so a
//     rerun only touches documents an interrupted run did not reach
//
// The Runner applies migrations strictly one after another in ascending
// priority. Migration n+1 starts only after every write of migration n has
// returned. The first failure is fatal: the runner enters StateFailed and the
// store is never reported ready.
//
// Readiness is a one-shot channel (Runner.Done) closed when the runner
// reaches a terminal state; Runner.Wait returns the terminal error.
package migrate
