package migrate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/transhist/internal/store"
)

// Kind selects how a migration is applied.
type Kind int

const (
	// KindStoreLevel runs Apply once against the whole store.
	KindStoreLevel Kind = iota + 1

	// KindRecordBackfill patches every document matched by Select.
	KindRecordBackfill
)

func (k Kind) String() string {
	switch k {
	case KindStoreLevel:
		return "store-level"
	case KindRecordBackfill:
		return "record-backfill"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ConflictPolicy decides what a backfill does when a patch violates a unique index.
type ConflictPolicy int

const (
	// FailOnConflict aborts the migration (default).
	FailOnConflict ConflictPolicy = iota

	// SkipOnConflict leaves the document unpatched and continues.
	SkipOnConflict
)

// StoreFunc is a store-level migration operation.
type StoreFunc func(ctx context.Context, s *store.Store) error

// UpdateFunc derives the patch for one selected document.
// An empty patch leaves the document unchanged.
type UpdateFunc func(doc store.Document) (store.Patch, error)

// Migration is one entry of the migration registry.
type Migration struct {
	Priority int
	Name     string
	Kind     Kind

	// Apply is used by KindStoreLevel.
	Apply StoreFunc

	// Select, Update and OnConflict are used by KindRecordBackfill.
	Select     store.Query
	Update     UpdateFunc
	OnConflict ConflictPolicy
}

// ErrDuplicatePriority is returned by Validate when two migrations share a priority.
var ErrDuplicatePriority = errors.New("duplicate migration priority")

// ErrInvalidMigration is returned by Validate for malformed registry entries.
var ErrInvalidMigration = errors.New("invalid migration")

// Validate checks that the registry is a well-formed total order:
// unique priorities, unique non-empty names, and the fields each kind needs.
func Validate(migrations []Migration) error {
	priorities := make(map[int]string, len(migrations))
	names := make(map[string]bool, len(migrations))

	for _, m := range migrations {
		if m.Name == "" {
			return fmt.Errorf("%w: priority %d has no name", ErrInvalidMigration, m.Priority)
		}
		if names[m.Name] {
			return fmt.Errorf("%w: name %q registered twice", ErrInvalidMigration, m.Name)
		}
		names[m.Name] = true

		if other, exists := priorities[m.Priority]; exists {
			return fmt.Errorf("%w: %d used by %q and %q", ErrDuplicatePriority, m.Priority, other, m.Name)
		}
		priorities[m.Priority] = m.Name

		switch m.Kind {
		case KindStoreLevel:
			if m.Apply == nil {
				return fmt.Errorf("%w: %q is store-level but has no Apply", ErrInvalidMigration, m.Name)
			}
		case KindRecordBackfill:
			if m.Select == nil || m.Update == nil {
				return fmt.Errorf("%w: %q is a backfill but lacks Select or Update", ErrInvalidMigration, m.Name)
			}
		default:
			return fmt.Errorf("%w: %q has unknown kind %v", ErrInvalidMigration, m.Name, m.Kind)
		}
	}
	return nil
}

// Sorted returns a copy of migrations in ascending priority (stable).
func Sorted(migrations []Migration) []Migration {
	out := make([]Migration, len(migrations))
	copy(out, migrations)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Error reports the migration that aborted a run.
type Error struct {
	Priority int
	Name     string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("migration %d %q failed: %v", e.Priority, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
