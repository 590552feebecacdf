package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/transhist/internal/record"
	"github.com/roach88/transhist/internal/store"
)

var (
	// ErrRecordNotFound means a merge side did not resolve to a record.
	// The caller's view is stale: refresh candidates and retry.
	ErrRecordNotFound = errors.New("history record not found")

	// ErrSameRecord means both merge sides resolve to one record.
	ErrSameRecord = errors.New("cannot merge a record into itself")

	// ErrSourceArchived means the source was archived by something other
	// than a merge into this target.
	ErrSourceArchived = errors.New("source record is already archived")
)

// Outcome describes what a merge wrote.
type Outcome struct {
	Target record.HistoryRecord
	Source record.HistoryRecord

	TargetUpdated  bool
	SourceArchived bool

	// AlreadyMerged is true when a previous merge of the same pair had
	// completed and nothing was written.
	AlreadyMerged bool
}

// Merger applies user-confirmed merges.
type Merger struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewMerger creates a Merger over the record store.
func NewMerger(s *store.Store, logger *slog.Logger, now func() time.Time) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Merger{store: s, logger: logger, now: now}
}

// MergeRecords folds the source record into the target record.
//
// The target (survivor) gains the source's translationsNumber and tags and
// lists the source id in mergedRecordIds. The source (loser) is archived and
// tagged "Merged"; it is never deleted.
//
// The two writes are separate store calls, target first. A crash between
// them leaves the target updated and the source active. Running the same
// merge again completes it without counting the source twice, because the
// target already lists the source id.
func (m *Merger) MergeRecords(ctx context.Context, sourceKey, targetKey record.TranslationKey) (Outcome, error) {
	sourceDoc, source, err := m.resolve(ctx, sourceKey)
	if err != nil {
		return Outcome{}, fmt.Errorf("merge source: %w", err)
	}
	targetDoc, target, err := m.resolve(ctx, targetKey)
	if err != nil {
		return Outcome{}, fmt.Errorf("merge target: %w", err)
	}
	if sourceDoc.Key() == targetDoc.Key() || source.ID == target.ID {
		return Outcome{}, fmt.Errorf("%w: %s", ErrSameRecord, source.ID)
	}

	targetDone := target.HasMerged(source.ID)
	sourceDone := source.IsArchived && source.HasTag(record.MergedTag)

	if sourceDone && targetDone {
		m.logger.Info("history records already merged", "source", source.ID, "target", target.ID)
		return Outcome{Target: target, Source: source, AlreadyMerged: true}, nil
	}
	if source.IsArchived && !targetDone {
		return Outcome{}, fmt.Errorf("%w: %s", ErrSourceArchived, source.ID)
	}

	m.logger.Info("merge history records", "source", source.ID, "target", target.ID)

	now := m.now().UnixMilli()
	out := Outcome{Target: target, Source: source}

	if !targetDone {
		out.Target.TranslationsNumber = target.TranslationsNumber + source.TranslationsNumber
		out.Target.Tags = record.UnionTags(target.Tags, source.Tags)
		out.Target.MergedRecordIDs = record.UnionTags(target.MergedRecordIDs, []string{source.ID})
		out.Target.LastModifiedDate = now

		patch := store.Patch{Set: map[string]any{
			record.FieldTranslationsNumber: out.Target.TranslationsNumber,
			record.FieldTags:               out.Target.Tags,
			record.FieldMergedRecordIDs:    out.Target.MergedRecordIDs,
			record.FieldLastModifiedDate:   out.Target.LastModifiedDate,
		}}
		if err := m.write(ctx, targetDoc, patch); err != nil {
			return Outcome{}, fmt.Errorf("update merge target %s: %w", target.ID, err)
		}
		out.TargetUpdated = true
	}

	out.Source.IsArchived = true
	out.Source.Tags = record.UnionTags(source.Tags, []string{record.MergedTag})
	out.Source.LastModifiedDate = now

	patch := store.Patch{Set: map[string]any{
		record.FieldIsArchived:       true,
		record.FieldTags:             out.Source.Tags,
		record.FieldLastModifiedDate: out.Source.LastModifiedDate,
	}}
	if err := m.write(ctx, sourceDoc, patch); err != nil {
		return out, fmt.Errorf("archive merge source %s: %w", source.ID, err)
	}
	out.SourceArchived = true

	return out, nil
}

func (m *Merger) resolve(ctx context.Context, key record.TranslationKey) (store.Document, record.HistoryRecord, error) {
	doc, found, err := m.store.FindOne(ctx, record.KeyQuery(key))
	if err != nil {
		return nil, record.HistoryRecord{}, err
	}
	if !found {
		return nil, record.HistoryRecord{}, fmt.Errorf("%w: %q (%s -> %s, forced=%t)",
			ErrRecordNotFound, key.Sentence, key.SourceLanguage, key.TargetLanguage, key.IsForcedTranslation)
	}
	r, err := record.FromDocument(doc)
	if err != nil {
		return nil, record.HistoryRecord{}, err
	}
	return doc, r, nil
}

func (m *Merger) write(ctx context.Context, doc store.Document, patch store.Patch) error {
	n, err := m.store.Update(ctx, store.ByKey(doc.Key()), patch)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: document %s vanished", ErrRecordNotFound, doc.Key())
	}
	return nil
}
