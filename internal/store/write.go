package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Insert adds a new document and returns it as stored.
// A missing _id is generated (UUIDv7). Inserting an existing _id or a value
// that violates a unique index fails without writing anything.
func (s *Store) Insert(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	d := doc.Clone()
	if d == nil {
		d = Document{}
	}
	if d.Key() == "" {
		d[KeyField] = uuid.Must(uuid.NewV7()).String()
	}
	if _, exists := s.docs[d.Key()]; exists {
		return nil, &UniqueViolationError{Field: KeyField, Value: d.Key(), Key: d.Key()}
	}

	stored, line, err := canonicalize(d)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	for _, ix := range s.indexes {
		if err := ix.check([]Document{stored}); err != nil {
			return nil, fmt.Errorf("insert: %w", err)
		}
	}
	if err := s.appendLines(line); err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	s.nextSeq++
	s.seq[stored.Key()] = s.nextSeq
	s.docs[stored.Key()] = stored
	for _, ix := range s.indexes {
		_ = ix.add(stored) // checked above
	}

	return stored.Clone(), nil
}

// Update applies the patch to every document matching q and returns the
// number of documents updated.
//
// The new version of each document is appended to the log; nothing is
// rewritten in place. All matched documents are written in a single append,
// after every unique index has accepted the whole batch.
func (s *Store) Update(ctx context.Context, q Query, p Patch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	matched := s.ordered(q)
	if len(matched) == 0 {
		return 0, nil
	}

	updated := make([]Document, 0, len(matched))
	lines := make([][]byte, 0, len(matched))
	for _, old := range matched {
		next, line, err := canonicalize(p.apply(old))
		if err != nil {
			return 0, fmt.Errorf("update: %w", err)
		}
		updated = append(updated, next)
		lines = append(lines, line)
	}

	for _, ix := range s.indexes {
		if err := ix.check(updated); err != nil {
			return 0, fmt.Errorf("update: %w", err)
		}
	}
	if err := s.appendLines(lines...); err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}

	for i, next := range updated {
		old := matched[i]
		for _, ix := range s.indexes {
			ix.remove(old)
		}
		s.docs[next.Key()] = next
	}
	for _, next := range updated {
		for _, ix := range s.indexes {
			_ = ix.add(next) // checked above
		}
	}

	return len(updated), nil
}

// Remove deletes every document matching q and returns how many were removed.
func (s *Store) Remove(ctx context.Context, q Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	matched := s.ordered(q)
	if len(matched) == 0 {
		return 0, nil
	}

	lines := make([][]byte, 0, len(matched))
	for _, d := range matched {
		line, err := encodeTombstone(d.Key())
		if err != nil {
			return 0, fmt.Errorf("remove: %w", err)
		}
		lines = append(lines, line)
	}
	if err := s.appendLines(lines...); err != nil {
		return 0, fmt.Errorf("remove: %w", err)
	}

	for _, d := range matched {
		for _, ix := range s.indexes {
			ix.remove(d)
		}
		delete(s.docs, d.Key())
		delete(s.seq, d.Key())
	}

	return len(matched), nil
}

// EnsureUniqueIndex creates a sparse unique index on field.
//
// Idempotent: an existing index on the same field is a no-op. Fails with a
// *UniqueViolationError if existing documents already hold duplicate values,
// in which case no index is created.
func (s *Store) EnsureUniqueIndex(ctx context.Context, field string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, exists := s.indexes[field]; exists {
		return nil
	}

	if err := s.buildIndex(field); err != nil {
		return fmt.Errorf("ensure unique index on %q: %w", field, err)
	}

	line, err := encodeIndexCreated(indexDef{FieldName: field, Unique: true, Sparse: true})
	if err != nil {
		delete(s.indexes, field)
		return fmt.Errorf("ensure unique index on %q: %w", field, err)
	}
	if err := s.appendLines(line); err != nil {
		delete(s.indexes, field)
		return fmt.Errorf("ensure unique index on %q: %w", field, err)
	}

	return nil
}

// HasIndex reports whether a unique index exists on field.
func (s *Store) HasIndex(field string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[field]
	return ok
}
