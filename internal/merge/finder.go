package merge

import (
	"context"
	"sort"

	"golang.org/x/text/cases"

	"github.com/roach88/transhist/internal/record"
)

// PairFilter decides whether two records may be suggested for merging.
type PairFilter interface {
	IsBlacklisted(ctx context.Context, a, b string) (bool, error)
}

// Finder groups likely duplicate records into merge candidates.
type Finder struct {
	filter PairFilter
	limit  int
}

// FinderOption configures a Finder.
type FinderOption func(*Finder)

// WithScanLimit restricts a scan to the n most recently translated active
// records. Zero or negative means no limit.
func WithScanLimit(n int) FinderOption {
	return func(f *Finder) {
		f.limit = n
	}
}

// NewFinder creates a Finder. A nil filter disables blacklist filtering.
func NewFinder(filter PairFilter, opts ...FinderOption) *Finder {
	f := &Finder{filter: filter}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// groupKey is the duplicate-grouping key: the semantic key with the
// sentence case-folded.
type groupKey struct {
	sentence       string
	forced         bool
	sourceLanguage string
	targetLanguage string
}

// FindCandidates scans records and returns merge candidates.
//
// Archived records are ignored. Records are visited most recently translated
// first (ties by id), so the freshest record of a group anchors it. Each
// record joins at most one group. A blacklisted (anchor, candidate) pair is
// skipped without consuming the candidate, which stays free to anchor or join
// another group. Groups left without candidates are not emitted.
//
// The result is deterministic for a fixed input and blacklist. An empty input
// yields an empty, non-nil result.
func (f *Finder) FindCandidates(ctx context.Context, records []record.HistoryRecord) ([]record.MergeCandidate, error) {
	active := make([]record.HistoryRecord, 0, len(records))
	for _, r := range records {
		if r.IsActive() {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].LastTranslatedDate != active[j].LastTranslatedDate {
			return active[i].LastTranslatedDate > active[j].LastTranslatedDate
		}
		return active[i].ID < active[j].ID
	})
	if f.limit > 0 && len(active) > f.limit {
		active = active[:f.limit]
	}

	// Bucket by grouping key; members keep scan order. Comparing only within
	// a bucket gives the same groups as comparing every pair.
	fold := cases.Fold()
	keys := make([]groupKey, len(active))
	buckets := make(map[groupKey][]int)
	for i, r := range active {
		k := groupKey{
			sentence:       fold.String(r.Sentence),
			forced:         r.IsForcedTranslation,
			sourceLanguage: r.SourceLanguage,
			targetLanguage: r.TargetLanguage,
		}
		keys[i] = k
		buckets[k] = append(buckets[k], i)
	}

	result := make([]record.MergeCandidate, 0)
	consumed := make([]bool, len(active))
	for i, r := range active {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if consumed[i] {
			continue
		}
		consumed[i] = true

		var mergeRecords []record.MergeHistoryRecord
		for _, j := range buckets[keys[i]] {
			if j <= i || consumed[j] {
				continue
			}
			blocked, err := f.isBlacklisted(ctx, r.ID, active[j].ID)
			if err != nil {
				return nil, err
			}
			if blocked {
				continue
			}
			consumed[j] = true
			mergeRecords = append(mergeRecords, active[j].Project())
		}

		if len(mergeRecords) > 0 {
			result = append(result, record.MergeCandidate{
				Record:       r.Project(),
				MergeRecords: mergeRecords,
			})
		}
	}

	return result, nil
}

func (f *Finder) isBlacklisted(ctx context.Context, a, b string) (bool, error) {
	if f.filter == nil {
		return false, nil
	}
	return f.filter.IsBlacklisted(ctx, a, b)
}
