// Package merge finds duplicate history records and applies user decisions
// about them.
//
// Three parts:
//   - Finder groups active records that translate the same sentence
//     (case-folded) between the same languages, skipping blacklisted pairs
//   - Blacklist persists record-id pairs the user refused to merge
//   - Merger folds a source record into a target record and archives the source
//
// The Finder is CPU-bound and pure apart from blacklist reads; Worker runs it
// on a background goroutine behind a request/response boundary.
package merge
