package merge

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/transhist/internal/record"
	"github.com/roach88/transhist/internal/store"
)

var mergeTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMergeStore(t *testing.T, records ...record.HistoryRecord) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.EnsureUniqueIndex(context.Background(), record.FieldID))
	for _, r := range records {
		doc, err := record.ToDocument(r)
		require.NoError(t, err)
		_, err = s.Insert(context.Background(), doc)
		require.NoError(t, err)
	}
	return s
}

func newMerger(s *store.Store) *Merger {
	return NewMerger(s, discardLogger(), func() time.Time { return mergeTime })
}

func load(t *testing.T, s *store.Store, key record.TranslationKey) record.HistoryRecord {
	t.Helper()
	doc, found, err := s.FindOne(context.Background(), record.KeyQuery(key))
	require.NoError(t, err)
	require.True(t, found)
	r, err := record.FromDocument(doc)
	require.NoError(t, err)
	return r
}

func tagged(r record.HistoryRecord, tags ...string) record.HistoryRecord {
	r.Tags = tags
	return r
}

func TestMergeRecords(t *testing.T) {
	ctx := context.Background()
	target := tagged(rec("Hello", "en", "fr", 300, 3), "x")
	source := tagged(rec("hello", "en", "fr", 200, 2), "y", "x")
	s := newMergeStore(t, target, source)

	out, err := newMerger(s).MergeRecords(ctx, source.Key(), target.Key())
	require.NoError(t, err)
	assert.True(t, out.TargetUpdated)
	assert.True(t, out.SourceArchived)
	assert.False(t, out.AlreadyMerged)

	gotTarget := load(t, s, target.Key())
	assert.EqualValues(t, 5, gotTarget.TranslationsNumber)
	assert.Equal(t, []string{"x", "y"}, gotTarget.Tags)
	assert.Equal(t, []string{source.ID}, gotTarget.MergedRecordIDs)
	assert.Equal(t, mergeTime.UnixMilli(), gotTarget.LastModifiedDate)
	assert.False(t, gotTarget.IsArchived)

	gotSource := load(t, s, source.Key())
	assert.True(t, gotSource.IsArchived)
	assert.Equal(t, []string{"y", "x", record.MergedTag}, gotSource.Tags)
	assert.EqualValues(t, 2, gotSource.TranslationsNumber, "source keeps its own count")
	assert.Equal(t, mergeTime.UnixMilli(), gotSource.LastModifiedDate)

	assert.Equal(t, gotTarget, out.Target)
	assert.Equal(t, gotSource, out.Source)
}

func TestMergeRecords_RetryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	target := rec("Hello", "en", "fr", 300, 3)
	source := rec("hello", "en", "fr", 200, 2)
	s := newMergeStore(t, target, source)
	m := newMerger(s)

	_, err := m.MergeRecords(ctx, source.Key(), target.Key())
	require.NoError(t, err)

	out, err := m.MergeRecords(ctx, source.Key(), target.Key())
	require.NoError(t, err)
	assert.True(t, out.AlreadyMerged)
	assert.False(t, out.TargetUpdated)
	assert.EqualValues(t, 5, load(t, s, target.Key()).TranslationsNumber)
}

func TestMergeRecords_CompletesInterruptedMerge(t *testing.T) {
	ctx := context.Background()
	source := rec("hello", "en", "fr", 200, 2)
	target := rec("Hello", "en", "fr", 300, 5)
	// The target write landed; the source write did not.
	target.MergedRecordIDs = []string{source.ID}
	s := newMergeStore(t, target, source)

	out, err := newMerger(s).MergeRecords(ctx, source.Key(), target.Key())
	require.NoError(t, err)
	assert.False(t, out.TargetUpdated)
	assert.True(t, out.SourceArchived)
	assert.EqualValues(t, 5, load(t, s, target.Key()).TranslationsNumber)
	assert.True(t, load(t, s, source.Key()).IsArchived)
}

func TestMergeRecords_NotFound(t *testing.T) {
	ctx := context.Background()
	target := rec("Hello", "en", "fr", 300, 3)
	s := newMergeStore(t, target)

	missing := record.TranslationKey{Sentence: "hello", SourceLanguage: "en", TargetLanguage: "fr"}
	_, err := newMerger(s).MergeRecords(ctx, missing, target.Key())
	require.ErrorIs(t, err, ErrRecordNotFound)

	_, err = newMerger(s).MergeRecords(ctx, target.Key(), missing)
	require.ErrorIs(t, err, ErrRecordNotFound)

	assert.EqualValues(t, 3, load(t, s, target.Key()).TranslationsNumber, "nothing written")
}

func TestMergeRecords_SameRecord(t *testing.T) {
	target := rec("Hello", "en", "fr", 300, 3)
	s := newMergeStore(t, target)

	_, err := newMerger(s).MergeRecords(context.Background(), target.Key(), target.Key())
	require.ErrorIs(t, err, ErrSameRecord)
}

func TestMergeRecords_SourceArchivedElsewhere(t *testing.T) {
	target := rec("Hello", "en", "fr", 300, 3)
	source := archived(rec("hello", "en", "fr", 200, 2))
	s := newMergeStore(t, target, source)

	_, err := newMerger(s).MergeRecords(context.Background(), source.Key(), target.Key())
	require.ErrorIs(t, err, ErrSourceArchived)
	assert.EqualValues(t, 3, load(t, s, target.Key()).TranslationsNumber)
}

func TestMergeRecords_ForcedKeyMatters(t *testing.T) {
	target := rec("Hello", "en", "fr", 300, 3)
	source := rec("hello", "en", "fr", 200, 2)
	s := newMergeStore(t, target, source)

	forcedSource := source.Key()
	forcedSource.IsForcedTranslation = true
	_, err := newMerger(s).MergeRecords(context.Background(), forcedSource, target.Key())
	require.ErrorIs(t, err, ErrRecordNotFound)
}
