package store

import "context"

// Find returns copies of every document matching q, in insertion order.
// Returns an empty (non-nil) slice when nothing matches.
func (s *Store) Find(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	matched := s.ordered(q)
	out := make([]Document, len(matched))
	for i, d := range matched {
		out[i] = d.Clone()
	}
	return out, nil
}

// FindOne returns the first document matching q in insertion order.
// found is false when nothing matches.
func (s *Store) FindOne(ctx context.Context, q Query) (doc Document, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrClosed
	}

	matched := s.ordered(q)
	if len(matched) == 0 {
		return nil, false, nil
	}
	return matched[0].Clone(), true, nil
}

// Count returns the number of documents matching q.
func (s *Store) Count(ctx context.Context, q Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	n := 0
	for _, d := range s.docs {
		if q.match(d) {
			n++
		}
	}
	return n, nil
}
