// Package metadb provides the SQLite-backed metadata database that sits next
// to the history data file.
//
// It holds two tables:
//   - applied_migrations: the migration journal, one row per (store_name, name)
//   - merge_blacklist: record-id pairs the user refused to merge
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Schema changes are tracked with PRAGMA user_version.
package metadb
