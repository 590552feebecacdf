package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/transhist/internal/merge"
	"github.com/roach88/transhist/internal/record"
)

// FindMergeCandidates scans active records for duplicates on the background
// worker. A store or blacklist read failure is logged and reported as no
// candidates. Errors are returned only when the session is not ready or
// ctx ends first.
func (s *Session) FindMergeCandidates(ctx context.Context) ([]record.MergeCandidate, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}

	candidates, err := s.findMergeCandidates(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.metrics.CandidateScans.WithLabelValues("error").Inc()
		s.logger.Error("merge candidate scan failed; reporting no candidates", "error", err)
		return []record.MergeCandidate{}, nil
	}

	s.metrics.CandidateScans.WithLabelValues("ok").Inc()
	s.metrics.CandidatesFound.Add(float64(len(candidates)))
	s.logger.Info("merge candidates found", "count", len(candidates))
	return candidates, nil
}

func (s *Session) findMergeCandidates(ctx context.Context) ([]record.MergeCandidate, error) {
	docs, err := s.store.Find(ctx, record.ActiveQuery())
	if err != nil {
		return nil, fmt.Errorf("read active records: %w", err)
	}
	active, err := record.FromDocuments(docs)
	if err != nil {
		return nil, err
	}

	pairs, err := s.blacklist.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	// The blacklist is read once per scan.
	return s.worker.Submit(ctx, active, pairs)
}

// MergeRecords folds the source record into the target record. Both are
// resolved by semantic key. merge.ErrRecordNotFound means the caller's
// candidate list is stale.
func (s *Session) MergeRecords(ctx context.Context, sourceKey, targetKey record.TranslationKey) (merge.Outcome, error) {
	if err := s.checkReady(); err != nil {
		return merge.Outcome{}, err
	}

	out, err := s.merger.MergeRecords(ctx, sourceKey, targetKey)
	switch {
	case err == nil && out.AlreadyMerged:
		s.metrics.MergesApplied.WithLabelValues("already_merged").Inc()
	case err == nil:
		s.metrics.MergesApplied.WithLabelValues("merged").Inc()
	case errors.Is(err, merge.ErrRecordNotFound):
		s.metrics.MergesApplied.WithLabelValues("not_found").Inc()
		s.logger.Warn("merge rejected", "error", err)
	default:
		s.metrics.MergesApplied.WithLabelValues("failed").Inc()
		s.logger.Error("merge failed", "error", err)
	}
	return out, err
}

// BlacklistRecords stops the pair from being suggested for merging again.
// Failures are logged and returned; they never affect the store.
func (s *Session) BlacklistRecords(ctx context.Context, sourceID, targetID string) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if err := s.blacklist.Add(ctx, sourceID, targetID); err != nil {
		s.logger.Error("merge blacklist update failed", "source", sourceID, "target", targetID, "error", err)
		return err
	}
	s.metrics.BlacklistAdditions.Inc()
	return nil
}

// IsBlacklisted reports whether the pair is blacklisted in either order.
func (s *Session) IsBlacklisted(ctx context.Context, a, b string) (bool, error) {
	if err := s.checkReady(); err != nil {
		return false, err
	}
	return s.blacklist.IsBlacklisted(ctx, a, b)
}
