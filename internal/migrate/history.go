package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/transhist/internal/record"
	"github.com/roach88/transhist/internal/store"
)

// Names of the history migrations. They are journal keys: never rename one
// that has shipped.
const (
	NameAddUniqueIDConstraint   = "AddUniqueIdConstraint"
	NameAddIdentifier           = "AddIdentifierMigration"
	NameRemoveDuplicatedRecords = "RemoveDuplicatedRecordsMigration"
	NameAddLastModificationTime = "AddLastModificationTimeMigration"
	NameMigrateDatesToNumbers   = "MigrateDatesToNumbers.v2"
)

// HistoryMigrations returns the registry for the history store.
// The logger receives per-record reports (e.g. removed duplicates); nil
// means slog.Default().
func HistoryMigrations(logger *slog.Logger) []Migration {
	if logger == nil {
		logger = slog.Default()
	}
	return []Migration{
		{
			Priority: 1,
			Name:     NameAddUniqueIDConstraint,
			Kind:     KindStoreLevel,
			Apply: func(ctx context.Context, s *store.Store) error {
				return s.EnsureUniqueIndex(ctx, record.FieldID)
			},
		},
		{
			Priority:   2,
			Name:       NameAddIdentifier,
			Kind:       KindRecordBackfill,
			Select:     store.Missing(record.FieldID),
			Update:     deriveIdentifier,
			OnConflict: SkipOnConflict,
		},
		{
			Priority: 3,
			Name:     NameRemoveDuplicatedRecords,
			Kind:     KindStoreLevel,
			Apply: func(ctx context.Context, s *store.Store) error {
				return removeDuplicatedRecords(ctx, s, logger)
			},
		},
		{
			Priority: 4,
			Name:     NameAddLastModificationTime,
			Kind:     KindRecordBackfill,
			Select:   store.Missing(record.FieldLastModifiedDate),
			Update:   deriveLastModifiedDate,
		},
		{
			Priority: 5,
			Name:     NameMigrateDatesToNumbers,
			Kind:     KindRecordBackfill,
			Select:   hasLegacyDate,
			Update:   normalizeDates,
		},
	}
}

// deriveIdentifier computes the content-addressed id of a legacy record.
func deriveIdentifier(doc store.Document) (store.Patch, error) {
	key := record.KeyFromDocument(doc)
	return store.SetField(record.FieldID, record.GenerateID(key)), nil
}

// identityOf returns the stored id, or the derived one for id-less documents.
func identityOf(doc store.Document) string {
	if id, ok := doc.String(record.FieldID); ok && id != "" {
		return id
	}
	return record.GenerateID(record.KeyFromDocument(doc))
}

// removeDuplicatedRecords keeps the first document (in store order) of every
// identity and removes the rest. A kept document that was left without an id
// by a backfill collision gets its derived id once its duplicates are gone.
func removeDuplicatedRecords(ctx context.Context, s *store.Store, logger *slog.Logger) error {
	docs, err := s.Find(ctx, store.All())
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	seen := make(map[string]bool, len(docs))
	var duplicates, idless []store.Document
	for _, doc := range docs {
		id := identityOf(doc)
		if seen[id] {
			duplicates = append(duplicates, doc)
			continue
		}
		seen[id] = true
		if id, ok := doc.String(record.FieldID); !ok || id == "" {
			idless = append(idless, doc)
		}
	}

	for _, doc := range duplicates {
		logger.Info("found duplicate history record, removing it",
			"id", identityOf(doc),
			"document", doc.Key(),
		)
		if _, err := s.Remove(ctx, store.ByKey(doc.Key())); err != nil {
			return fmt.Errorf("remove duplicate %s: %w", doc.Key(), err)
		}
	}

	for _, doc := range idless {
		if _, err := s.Update(ctx, store.ByKey(doc.Key()), store.SetField(record.FieldID, identityOf(doc))); err != nil {
			return fmt.Errorf("set id of %s: %w", doc.Key(), err)
		}
	}
	return nil
}

// deriveLastModifiedDate backfills lastModifiedDate from lastTranslatedDate,
// then updatedDate, then createdDate.
func deriveLastModifiedDate(doc store.Document) (store.Patch, error) {
	fallbacks := []string{
		record.FieldLastTranslatedDate,
		record.FieldUpdatedDate,
		record.FieldCreatedDate,
	}
	for _, field := range fallbacks {
		millis, ok, err := toMillis(doc[field])
		if err != nil {
			return store.Patch{}, fmt.Errorf("%s: %w", field, err)
		}
		if ok {
			return store.SetField(record.FieldLastModifiedDate, millis), nil
		}
	}
	// No date at all: epoch, so any remote copy wins a conflict.
	return store.SetField(record.FieldLastModifiedDate, int64(0)), nil
}

// hasLegacyDate matches documents with any date field not stored as a number.
func hasLegacyDate(doc store.Document) bool {
	for _, field := range record.DateFields {
		if isLegacyDate(doc[field]) {
			return true
		}
	}
	return false
}

// normalizeDates converts every legacy date field to unix milliseconds.
func normalizeDates(doc store.Document) (store.Patch, error) {
	patch := store.Patch{Set: make(map[string]any)}
	for _, field := range record.DateFields {
		v := doc[field]
		if !isLegacyDate(v) {
			continue
		}
		millis, _, err := toMillis(v)
		if err != nil {
			return store.Patch{}, fmt.Errorf("%s: %w", field, err)
		}
		patch.Set[field] = millis
	}
	return patch, nil
}
