package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/transhist/internal/metadb"
)

// PairStore persists blacklist pairs. *metadb.DB implements it.
type PairStore interface {
	InsertBlacklistPair(ctx context.Context, p metadb.BlacklistPair) error
	HasBlacklistPair(ctx context.Context, a, b string) (bool, error)
	BlacklistPairs(ctx context.Context) ([]metadb.BlacklistPair, error)
}

// ErrInvalidPair is returned for pairs with an empty or repeated id.
var ErrInvalidPair = errors.New("invalid blacklist pair")

// Blacklist is the persistent set of undirected record-id pairs that must
// never be suggested for merging again. Entries never expire and are never
// pruned; pairs naming deleted records are harmless.
type Blacklist struct {
	pairs  PairStore
	logger *slog.Logger
	now    func() time.Time
}

// NewBlacklist creates a Blacklist over the given pair store.
func NewBlacklist(pairs PairStore, logger *slog.Logger) *Blacklist {
	if logger == nil {
		logger = slog.Default()
	}
	return &Blacklist{pairs: pairs, logger: logger, now: time.Now}
}

// Add blacklists the pair (sourceID, targetID) in both directions.
// Idempotent: a pair already present in either order is not stored again.
func (b *Blacklist) Add(ctx context.Context, sourceID, targetID string) error {
	if sourceID == "" || targetID == "" || sourceID == targetID {
		return fmt.Errorf("%w: %q, %q", ErrInvalidPair, sourceID, targetID)
	}

	exists, err := b.pairs.HasBlacklistPair(ctx, sourceID, targetID)
	if err != nil {
		return fmt.Errorf("add to merge blacklist: %w", err)
	}
	if exists {
		b.logger.Debug("records already in merge blacklist", "source", sourceID, "target", targetID)
		return nil
	}

	err = b.pairs.InsertBlacklistPair(ctx, metadb.BlacklistPair{
		SourceRecordID: sourceID,
		TargetRecordID: targetID,
		CreatedAt:      b.now(),
	})
	if err != nil {
		return fmt.Errorf("add to merge blacklist: %w", err)
	}

	b.logger.Info("records added to merge blacklist", "source", sourceID, "target", targetID)
	return nil
}

// IsBlacklisted reports whether the pair is blacklisted in either order.
func (b *Blacklist) IsBlacklisted(ctx context.Context, a, bID string) (bool, error) {
	found, err := b.pairs.HasBlacklistPair(ctx, a, bID)
	if err != nil {
		return false, fmt.Errorf("check merge blacklist: %w", err)
	}
	return found, nil
}

// Snapshot loads every pair into an in-memory PairFilter.
// Duplicate rows collapse into one entry.
func (b *Blacklist) Snapshot(ctx context.Context) (PairSet, error) {
	rows, err := b.pairs.BlacklistPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load merge blacklist: %w", err)
	}
	set := make(PairSet, len(rows))
	for _, row := range rows {
		set.Add(row.SourceRecordID, row.TargetRecordID)
	}
	return set, nil
}

// PairSet is an in-memory undirected pair set.
type PairSet map[[2]string]struct{}

func orderedPair(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Add inserts the pair.
func (s PairSet) Add(a, b string) {
	s[orderedPair(a, b)] = struct{}{}
}

// Contains reports whether the pair is present in either order.
func (s PairSet) Contains(a, b string) bool {
	_, ok := s[orderedPair(a, b)]
	return ok
}

// IsBlacklisted implements PairFilter.
func (s PairSet) IsBlacklisted(_ context.Context, a, b string) (bool, error) {
	return s.Contains(a, b), nil
}
