package store

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DefaultCorruptThreshold is the share of unreadable lines tolerated on load.
const DefaultCorruptThreshold = 0.1

// Store is an append-log document store.
// Uses one data file per store; an empty path keeps everything in memory.
type Store struct {
	mu sync.RWMutex

	path string
	file *os.File

	docs    map[string]Document
	seq     map[string]int64
	nextSeq int64
	indexes map[string]*uniqueIndex

	corruptThreshold float64
	closed           bool
}

// Option configures Open.
type Option func(*Store)

// WithCorruptThreshold sets the share (0..1) of unreadable lines tolerated on load.
func WithCorruptThreshold(threshold float64) Option {
	return func(s *Store) {
		s.corruptThreshold = threshold
	}
}

// Open loads the data file at path, creating it (and its directory) if needed.
//
// Later lines for the same _id supersede earlier ones; tombstones remove
// documents; index definitions are re-applied. Unreadable lines are skipped
// unless their share exceeds the corrupt threshold, in which case Open fails
// with ErrCorrupt.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:             path,
		docs:             make(map[string]Document),
		seq:              make(map[string]int64),
		indexes:          make(map[string]*uniqueIndex),
		corruptThreshold: DefaultCorruptThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}

	if path == "" {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	if err := s.load(data); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	s.file = f

	return s, nil
}

// load replays the log into memory.
func (s *Store) load(data []byte) error {
	var defs []indexDef
	corrupt, total := 0, 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		d, err := decodeDocument(line)
		if err != nil {
			corrupt++
			continue
		}

		switch {
		case d.Has(indexCreatedField):
			def, ok := parseIndexDef(d[indexCreatedField])
			if !ok {
				corrupt++
				continue
			}
			defs = append(defs, def)
		case d.Has(indexRemovedField):
			field, _ := d[indexRemovedField].(string)
			defs = removeDef(defs, field)
		case d.Key() == "":
			corrupt++
		case d[deletedField] == true:
			delete(s.docs, d.Key())
			delete(s.seq, d.Key())
		default:
			if _, exists := s.seq[d.Key()]; !exists {
				s.nextSeq++
				s.seq[d.Key()] = s.nextSeq
			}
			s.docs[d.Key()] = d
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan data file: %w", err)
	}

	if total > 0 && float64(corrupt)/float64(total) > s.corruptThreshold {
		return fmt.Errorf("%w: %d of %d lines unreadable", ErrCorrupt, corrupt, total)
	}

	for _, def := range defs {
		if !def.Unique {
			continue
		}
		if err := s.buildIndex(def.FieldName); err != nil {
			return fmt.Errorf("failed to rebuild index on %q: %w", def.FieldName, err)
		}
	}
	return nil
}

func parseIndexDef(v any) (indexDef, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return indexDef{}, false
	}
	field, _ := m["fieldName"].(string)
	if field == "" {
		return indexDef{}, false
	}
	unique, _ := m["unique"].(bool)
	sparse, _ := m["sparse"].(bool)
	return indexDef{FieldName: field, Unique: unique, Sparse: sparse}, true
}

func removeDef(defs []indexDef, field string) []indexDef {
	out := defs[:0]
	for _, def := range defs {
		if def.FieldName != field {
			out = append(out, def)
		}
	}
	return out
}

// buildIndex creates the unique index on field from the documents in memory.
func (s *Store) buildIndex(field string) error {
	ix := newUniqueIndex(field)
	for _, d := range s.ordered(nil) {
		if err := ix.add(d); err != nil {
			return err
		}
	}
	s.indexes[field] = ix
	return nil
}

// ordered returns the live documents matching q in insertion order.
// The returned documents are the stored instances; callers must clone.
func (s *Store) ordered(q Query) []Document {
	out := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		if q.match(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.seq[out[i].Key()] < s.seq[out[j].Key()]
	})
	return out
}

// appendLines writes the given lines to the data file in one write.
func (s *Store) appendLines(lines ...[]byte) error {
	if s.file == nil {
		return nil
	}
	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append to data file: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync data file: %w", err)
	}
	return nil
}

// Compact rewrites the data file so it holds exactly one line per live
// document plus the index definitions.
//
// The new file is written next to the old one (path + "~") and renamed over
// it, so a crash leaves either the old or the new file intact.
func (s *Store) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.path == "" {
		return nil
	}

	var buf bytes.Buffer
	for _, d := range s.ordered(nil) {
		line, err := encodeDocument(d)
		if err != nil {
			return fmt.Errorf("compact: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	for _, field := range s.indexFields() {
		line, err := encodeIndexCreated(indexDef{FieldName: field, Unique: true, Sparse: true})
		if err != nil {
			return fmt.Errorf("compact: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	tmp := s.path + "~"
	if err := writeFileSync(tmp, buf.Bytes()); err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("compact: close data file: %w", err)
	}
	s.file = nil
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("compact: rename: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("compact: reopen data file: %w", err)
	}
	s.file = f

	return nil
}

func (s *Store) indexFields() []string {
	fields := make([]string, 0, len(s.indexes))
	for field := range s.indexes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Freeze runs fn while no write can reach the data file.
// Used to copy the file consistently.
func (s *Store) Freeze(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

// Path returns the data file path ("" for in-memory stores).
func (s *Store) Path() string {
	return s.path
}

// Close releases the data file. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
