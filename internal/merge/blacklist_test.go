package merge

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/transhist/internal/metadb"
)

func newBlacklist(t *testing.T) (*Blacklist, *metadb.DB) {
	t.Helper()
	db, err := metadb.Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBlacklist(db, discardLogger()), db
}

func TestBlacklist_AddIsSymmetric(t *testing.T) {
	ctx := context.Background()
	b, _ := newBlacklist(t)

	require.NoError(t, b.Add(ctx, "src", "tgt"))

	for _, pair := range [][2]string{{"src", "tgt"}, {"tgt", "src"}} {
		ok, err := b.IsBlacklisted(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, ok, "%v", pair)
	}

	ok, err := b.IsBlacklisted(ctx, "src", "other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlacklist_AddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b, db := newBlacklist(t)

	require.NoError(t, b.Add(ctx, "a", "b"))
	require.NoError(t, b.Add(ctx, "a", "b"))
	require.NoError(t, b.Add(ctx, "b", "a"))

	rows, err := db.BlacklistPairs(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestBlacklist_InvalidPair(t *testing.T) {
	b, _ := newBlacklist(t)
	for _, pair := range [][2]string{{"", "b"}, {"a", ""}, {"a", "a"}} {
		err := b.Add(context.Background(), pair[0], pair[1])
		assert.ErrorIs(t, err, ErrInvalidPair, "%v", pair)
	}
}

func TestBlacklist_Snapshot(t *testing.T) {
	ctx := context.Background()
	b, db := newBlacklist(t)

	require.NoError(t, b.Add(ctx, "a", "b"))
	// Rows written by an older version may repeat a pair in reverse.
	require.NoError(t, db.InsertBlacklistPair(ctx, metadb.BlacklistPair{SourceRecordID: "b", TargetRecordID: "a"}))
	require.NoError(t, b.Add(ctx, "c", "d"))

	set, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.True(t, set.Contains("b", "a"))
	assert.True(t, set.Contains("d", "c"))
	assert.False(t, set.Contains("a", "c"))

	ok, err := set.IsBlacklisted(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, ok)
}

type brokenPairs struct{ err error }

func (p brokenPairs) InsertBlacklistPair(context.Context, metadb.BlacklistPair) error { return p.err }
func (p brokenPairs) HasBlacklistPair(context.Context, string, string) (bool, error) {
	return false, p.err
}
func (p brokenPairs) BlacklistPairs(context.Context) ([]metadb.BlacklistPair, error) {
	return nil, p.err
}

func TestBlacklist_StoreErrors(t *testing.T) {
	boom := errors.New("boom")
	b := NewBlacklist(brokenPairs{err: boom}, discardLogger())

	assert.ErrorIs(t, b.Add(context.Background(), "a", "b"), boom)
	_, err := b.Snapshot(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = b.IsBlacklisted(context.Background(), "a", "b")
	assert.ErrorIs(t, err, boom)
}
