// Package history owns one open history store.
//
// A Session wires the record store, the auxiliary SQLite database, backups,
// the migration runner and the merge components together, and exposes the
// operations the transport layer calls: FindMergeCandidates, MergeRecords
// and BlacklistRecords.
//
// Opening a session takes the startup backup and starts the migration runner
// in the background. Every record operation fails with ErrNotReady until all
// migrations have completed; if a migration fails the session never becomes
// ready.
package history
