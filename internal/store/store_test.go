package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	stored, err := s.Insert(ctx, Document{"sentence": "Hello", "translationsNumber": 3})
	require.NoError(t, err)
	require.NotEmpty(t, stored.Key())

	n, ok := stored.Int64("translationsNumber")
	require.True(t, ok)
	assert.Equal(t, int64(3), n)

	docs, err := s.Find(ctx, Where("sentence", "Hello"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, stored.Key(), docs[0].Key())

	// Results are copies.
	docs[0]["sentence"] = "changed"
	doc, found, err := s.FindOne(ctx, ByKey(stored.Key()))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Hello", doc["sentence"])
}

func TestFind_EmptyResultIsNonNil(t *testing.T) {
	s, _ := openTemp(t)
	docs, err := s.Find(context.Background(), Where("sentence", "nope"))
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)

	_, found, err := s.FindOne(context.Background(), All())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInsert_DuplicateKey(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	_, err := s.Insert(ctx, Document{KeyField: "a"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Document{KeyField: "a"})
	require.ErrorIs(t, err, ErrUniqueViolation)
}

func TestReload_LastLineWins(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	a, err := s.Insert(ctx, Document{"sentence": "a", "n": 1})
	require.NoError(t, err)
	b, err := s.Insert(ctx, Document{"sentence": "b"})
	require.NoError(t, err)

	n, err := s.Update(ctx, ByKey(a.Key()), SetField("n", 2))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err := s.Remove(ctx, ByKey(b.Key()))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	require.NoError(t, s.Close())

	// insert, insert, update, tombstone
	assert.Len(t, readLines(t, path), 4)

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	docs, err := reopened.Find(ctx, All())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	got, _ := docs[0].Int64("n")
	assert.Equal(t, int64(2), got)
}

func TestUpdate_UnsetAndKeyPreserved(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	d, err := s.Insert(ctx, Document{"a": 1, "b": 2})
	require.NoError(t, err)

	_, err = s.Update(ctx, ByKey(d.Key()), Patch{
		Set:   map[string]any{KeyField: "other", "c": []string{"x"}},
		Unset: []string{"b", KeyField},
	})
	require.NoError(t, err)

	got, found, err := s.FindOne(ctx, ByKey(d.Key()))
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, got.Has("b"))
	assert.Equal(t, []any{"x"}, got["c"])
}

func TestUpdate_NoMatch(t *testing.T) {
	s, _ := openTemp(t)
	n, err := s.Update(context.Background(), ByKey("missing"), SetField("a", 1))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUniqueIndex(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	a, err := s.Insert(ctx, Document{"id": "x"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Document{"sentence": "no id"})
	require.NoError(t, err)

	require.NoError(t, s.EnsureUniqueIndex(ctx, "id"))
	require.NoError(t, s.EnsureUniqueIndex(ctx, "id"))
	assert.True(t, s.HasIndex("id"))

	// Sparse: documents without the field are not indexed.
	_, err = s.Insert(ctx, Document{"sentence": "also no id"})
	require.NoError(t, err)

	_, err = s.Insert(ctx, Document{"id": "x"})
	var uv *UniqueViolationError
	require.ErrorAs(t, err, &uv)
	assert.Equal(t, "id", uv.Field)
	assert.Equal(t, a.Key(), uv.Key)

	// A rejected update writes nothing.
	before := len(readLines(t, path))
	_, err = s.Update(ctx, Missing("id"), SetField("id", "y"))
	require.ErrorIs(t, err, ErrUniqueViolation)
	assert.Len(t, readLines(t, path), before)

	// The index survives a reload.
	require.NoError(t, s.Close())
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.HasIndex("id"))
	_, err = reopened.Insert(ctx, Document{"id": "x"})
	require.ErrorIs(t, err, ErrUniqueViolation)
}

func TestEnsureUniqueIndex_ExistingDuplicates(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	_, err := s.Insert(ctx, Document{"id": "x"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Document{"id": "x"})
	require.NoError(t, err)

	err = s.EnsureUniqueIndex(ctx, "id")
	require.ErrorIs(t, err, ErrUniqueViolation)
	assert.False(t, s.HasIndex("id"))
}

func TestCompact(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	d, err := s.Insert(ctx, Document{"n": 1})
	require.NoError(t, err)
	for i := 2; i <= 5; i++ {
		_, err := s.Update(ctx, ByKey(d.Key()), SetField("n", i))
		require.NoError(t, err)
	}
	gone, err := s.Insert(ctx, Document{"n": 0})
	require.NoError(t, err)
	_, err = s.Remove(ctx, ByKey(gone.Key()))
	require.NoError(t, err)
	require.NoError(t, s.EnsureUniqueIndex(ctx, "id"))

	require.NoError(t, s.Compact(ctx))
	lines := readLines(t, path)
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.EqualValues(t, 5, first["n"])
	assert.Contains(t, lines[1], indexCreatedField)

	// Compaction is byte-stable.
	require.NoError(t, s.Compact(ctx))
	assert.Equal(t, lines, readLines(t, path))

	// Writes after compaction go to the new file.
	_, err = s.Insert(ctx, Document{"n": 9})
	require.NoError(t, err)
	assert.Len(t, readLines(t, path), 3)
}

func TestOpen_SkipsCorruptLinesUnderThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	var lines []string
	for i := 0; i < 19; i++ {
		lines = append(lines, `{"_id":"k`+string(rune('a'+i))+`","n":1}`)
	}
	lines = append(lines, `{"_id":"broken"`)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 19, n)
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	require.NoError(t, os.WriteFile(path, []byte("garbage\n{\"_id\":\"a\"}\nmore garbage\n"), 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrCorrupt)

	s, err := Open(path, WithCorruptThreshold(1))
	require.NoError(t, err)
	s.Close()
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Insert(ctx, Document{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Find(ctx, All())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Update(ctx, All(), SetField("a", 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Compact(ctx), ErrClosed)
}

func TestCanceledContext(t *testing.T) {
	s, _ := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Insert(ctx, Document{})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Count(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Insert(ctx, Document{"a": 1})
	require.NoError(t, err)
	require.NoError(t, s.Compact(ctx))
	assert.Equal(t, "", s.Path())
}

func TestQueries(t *testing.T) {
	d := Document{"s": "x", "n": json.Number("3"), "f": 3.0, "nil": nil}

	assert.True(t, Where("n", 3)(d))
	assert.True(t, Where("f", int64(3))(d))
	assert.True(t, Missing("nil")(d))
	assert.True(t, Missing("absent")(d))
	assert.True(t, Exists("s")(d))
	assert.True(t, IsString("s")(d))
	assert.False(t, IsString("n")(d))
	assert.True(t, And(Where("s", "x"), Not(Missing("s")))(d))
	assert.True(t, Or(Where("s", "y"), Where("n", 3))(d))
	assert.False(t, Or()(d))
	assert.True(t, And()(d))
}

func TestConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Insert(ctx, Document{"n": 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, readLines(t, path), 20)
	n, err := s.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestFreezeBlocksWriters(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	inserted := make(chan struct{})
	err := s.Freeze(func() error {
		go func() {
			_, _ = s.Insert(ctx, Document{})
			close(inserted)
		}()
		select {
		case <-inserted:
			t.Error("insert completed while frozen")
		default:
		}
		return nil
	})
	require.NoError(t, err)
	<-inserted
}
