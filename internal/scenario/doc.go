// Package scenario replays YAML scenarios against a real history session.
//
// A scenario seeds the record store with raw (possibly legacy) documents,
// opens a session on it, which runs every migration, then executes a flow of
// operations. Each operation's actual outcome is compared with the step's
// expect clause, and assertions check the trace and the final store state.
//
// Scenario format:
//
//	name: merge-after-migration
//	description: legacy duplicates are found and merged
//	config:
//	  lastRecordsToScan: 0
//	seed:
//	  - {sentence: Hello, sourceLanguage: en, targetLanguage: fr, ...}
//	flow:
//	  - invoke: history.findMergeCandidates
//	    args: {}
//	    expect:
//	      case: Success
//	      result: {count: 1}
//	assertions:
//	  - type: final_state
//	    table: records
//	    where: {sentence: Hello}
//	    expect: {translationsNumber: 5}
//
// Runs are deterministic: the clock is fake and backups are disabled, so
// traces can be compared against golden files.
package scenario
