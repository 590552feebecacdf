package store

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrUniqueViolation is matched by every *UniqueViolationError.
	ErrUniqueViolation = errors.New("unique constraint violated")

	// ErrCorrupt is returned by Open when too much of the data file is unreadable.
	ErrCorrupt = errors.New("data file is corrupt")
)

// UniqueViolationError reports a write or index creation rejected by a unique index.
type UniqueViolationError struct {
	Field string
	Value any

	// Key is the store key of the document that already holds Value.
	Key string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint violated: field %q value %v already held by document %s", e.Field, e.Value, e.Key)
}

// Is makes errors.Is(err, ErrUniqueViolation) true.
func (e *UniqueViolationError) Is(target error) bool {
	return target == ErrUniqueViolation
}
