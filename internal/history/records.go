package history

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/transhist/internal/record"
	"github.com/roach88/transhist/internal/store"
)

// RecordFilter selects records for Records.
type RecordFilter struct {
	StarredOnly     bool
	IncludeArchived bool
	SourceLanguage  string
	TargetLanguage  string
	Tag             string
	// Limit of 0 returns every match.
	Limit int
}

func (f RecordFilter) query() store.Query {
	qs := []store.Query{}
	if !f.IncludeArchived {
		qs = append(qs, record.ActiveQuery())
	}
	if f.StarredOnly {
		qs = append(qs, store.Where(record.FieldIsStarred, true))
	}
	if f.SourceLanguage != "" {
		qs = append(qs, store.Where(record.FieldSourceLanguage, f.SourceLanguage))
	}
	if f.TargetLanguage != "" {
		qs = append(qs, store.Where(record.FieldTargetLanguage, f.TargetLanguage))
	}
	return store.And(qs...)
}

// Records lists records matching filter, most recently translated first.
func (s *Session) Records(ctx context.Context, filter RecordFilter) ([]record.HistoryRecord, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}

	docs, err := s.store.Find(ctx, filter.query())
	if err != nil {
		return nil, fmt.Errorf("list history records: %w", err)
	}
	records, err := record.FromDocuments(docs)
	if err != nil {
		return nil, err
	}

	out := records[:0]
	for _, r := range records {
		if filter.Tag != "" && !r.HasTag(filter.Tag) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastTranslatedDate > out[j].LastTranslatedDate
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Insert stores a new record. The id is derived from the key and missing
// dates are set to now. A second record with the same key fails with
// store.ErrUniqueViolation.
func (s *Session) Insert(ctx context.Context, r record.HistoryRecord) (record.HistoryRecord, error) {
	if err := s.checkReady(); err != nil {
		return record.HistoryRecord{}, err
	}

	r.ID = record.GenerateID(r.Key())
	now := s.now().UnixMilli()
	if r.CreatedDate == 0 {
		r.CreatedDate = now
	}
	if r.UpdatedDate == 0 {
		r.UpdatedDate = r.CreatedDate
	}
	if r.LastTranslatedDate == 0 {
		r.LastTranslatedDate = r.CreatedDate
	}
	if r.LastModifiedDate == 0 {
		r.LastModifiedDate = now
	}
	if r.TranslationsNumber == 0 {
		r.TranslationsNumber = 1
	}

	doc, err := record.ToDocument(r)
	if err != nil {
		return record.HistoryRecord{}, err
	}
	if _, err := s.store.Insert(ctx, doc); err != nil {
		return record.HistoryRecord{}, fmt.Errorf("insert history record %q: %w", r.Sentence, err)
	}
	r.Tags = record.NormalizeTags(r.Tags)
	return r, nil
}

// Record resolves a record by semantic key.
func (s *Session) Record(ctx context.Context, key record.TranslationKey) (record.HistoryRecord, bool, error) {
	if err := s.checkReady(); err != nil {
		return record.HistoryRecord{}, false, err
	}
	doc, found, err := s.store.FindOne(ctx, record.KeyQuery(key))
	if err != nil || !found {
		return record.HistoryRecord{}, found, err
	}
	r, err := record.FromDocument(doc)
	if err != nil {
		return record.HistoryRecord{}, false, err
	}
	return r, true, nil
}

// Compact rewrites the store file without superseded lines.
func (s *Session) Compact(ctx context.Context) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	return s.store.Compact(ctx)
}
