// Package record defines the translation history data model and the
// content-addressed record identity.
//
// This package contains the record types and pure functions over them. It
// imports only internal/store (for the document representation); every other
// history package imports record.
//
// Key constraints:
//   - A record's ID is a pure function of its TranslationKey (see GenerateID)
//   - JSON field names are camelCase, matching documents already on disk
//   - All dates are unix milliseconds (int64)
//   - Tags are a set: deduplicated on write, order irrelevant
package record
