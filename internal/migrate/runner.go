package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/transhist/internal/metadb"
	"github.com/roach88/transhist/internal/store"
)

// State is the runner's position in Idle → Running → Complete | Failed.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Journal records which migrations were applied to a named store.
// *metadb.DB implements it.
type Journal interface {
	AppliedMigrations(ctx context.Context, database string) ([]metadb.AppliedMigration, error)
	RecordMigration(ctx context.Context, am metadb.AppliedMigration) error
}

// Runner drains the migration registry against one store.
//
// Thread-safety: Run executes at most once; Done, Err, State and Wait are
// safe for concurrent use.
type Runner struct {
	store      *store.Store
	migrations []Migration
	journal    Journal
	database   string
	logger     *slog.Logger
	now        func() time.Time
	onApplied  func(Migration, time.Duration)

	once sync.Once
	done chan struct{}

	mu      sync.Mutex
	state   State
	current string
	err     error
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithJournal skips migrations already recorded for database and records
// each migration once it completes. Without a journal every migration runs.
func WithJournal(j Journal, database string) RunnerOption {
	return func(r *Runner) {
		r.journal = j
		r.database = database
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithClock sets the wall clock used for journal timestamps.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// WithOnApplied registers a callback invoked after each applied migration.
func WithOnApplied(fn func(Migration, time.Duration)) RunnerOption {
	return func(r *Runner) {
		r.onApplied = fn
	}
}

// NewRunner creates a runner for the given registry.
func NewRunner(s *store.Store, migrations []Migration, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:      s,
		migrations: migrations,
		logger:     slog.Default(),
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Start runs the migrations in a new goroutine. Use Done or Wait to observe completion.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		_ = r.Run(ctx)
	}()
}

// Run applies all pending migrations and returns when the runner reaches a
// terminal state. Subsequent calls return the first call's result.
func (r *Runner) Run(ctx context.Context) error {
	r.once.Do(func() {
		err := r.run(ctx)

		r.mu.Lock()
		r.current = ""
		r.err = err
		if err != nil {
			r.state = StateFailed
		} else {
			r.state = StateComplete
		}
		r.mu.Unlock()

		close(r.done)
	})
	return r.Err()
}

func (r *Runner) run(ctx context.Context) error {
	r.setState(StateRunning, "")

	if err := Validate(r.migrations); err != nil {
		return err
	}

	r.logger.Info("start running history migrations", "count", len(r.migrations))

	applied, err := r.appliedNames(ctx)
	if err != nil {
		return err
	}

	for _, m := range Sorted(r.migrations) {
		if applied[m.Name] {
			r.logger.Debug("migration already applied", "migration", m.Name, "priority", m.Priority)
			continue
		}
		if err := ctx.Err(); err != nil {
			return &Error{Priority: m.Priority, Name: m.Name, Err: err}
		}

		r.setState(StateRunning, m.Name)
		r.logger.Info("start running migration", "migration", m.Name, "priority", m.Priority, "kind", m.Kind)

		start := time.Now()
		if err := r.apply(ctx, m); err != nil {
			r.logger.Error("migration failed", "migration", m.Name, "priority", m.Priority, "error", err)
			return &Error{Priority: m.Priority, Name: m.Name, Err: err}
		}
		elapsed := time.Since(start)

		if r.journal != nil {
			am := metadb.AppliedMigration{
				Database:  r.database,
				Name:      m.Name,
				Priority:  m.Priority,
				AppliedAt: r.now(),
			}
			if err := r.journal.RecordMigration(ctx, am); err != nil {
				return &Error{Priority: m.Priority, Name: m.Name, Err: err}
			}
		}

		r.logger.Info("end running migration", "migration", m.Name, "duration", elapsed)
		if r.onApplied != nil {
			r.onApplied(m, elapsed)
		}
	}

	if err := r.store.Compact(ctx); err != nil {
		return fmt.Errorf("compact after migrations: %w", err)
	}

	r.logger.Info("end running history migrations")
	return nil
}

func (r *Runner) appliedNames(ctx context.Context) (map[string]bool, error) {
	names := make(map[string]bool)
	if r.journal == nil {
		return names, nil
	}
	applied, err := r.journal.AppliedMigrations(ctx, r.database)
	if err != nil {
		return nil, fmt.Errorf("read migration journal: %w", err)
	}
	for _, am := range applied {
		names[am.Name] = true
	}
	if len(applied) > 0 {
		r.logger.Info("migrations already applied", "count", len(applied))
	}
	return names, nil
}

// apply dispatches on the migration kind.
func (r *Runner) apply(ctx context.Context, m Migration) error {
	switch m.Kind {
	case KindStoreLevel:
		return m.Apply(ctx, r.store)
	case KindRecordBackfill:
		return r.backfill(ctx, m)
	default:
		return fmt.Errorf("%w: unknown kind %v", ErrInvalidMigration, m.Kind)
	}
}

// backfill patches every selected document independently. Documents are
// patched one at a time; an interruption leaves the rest for the next run.
func (r *Runner) backfill(ctx context.Context, m Migration) error {
	docs, err := r.store.Find(ctx, m.Select)
	if err != nil {
		return fmt.Errorf("select records: %w", err)
	}

	patched, skipped := 0, 0
	for _, doc := range docs {
		patch, err := m.Update(doc)
		if err != nil {
			return fmt.Errorf("derive patch for document %s: %w", doc.Key(), err)
		}
		if patch.IsEmpty() {
			continue
		}

		_, err = r.store.Update(ctx, store.ByKey(doc.Key()), patch)
		if err != nil {
			if m.OnConflict == SkipOnConflict && errors.Is(err, store.ErrUniqueViolation) {
				skipped++
				r.logger.Warn("backfill conflict, record left unpatched",
					"migration", m.Name,
					"document", doc.Key(),
					"error", err,
				)
				continue
			}
			return fmt.Errorf("update document %s: %w", doc.Key(), err)
		}
		patched++
	}

	r.logger.Debug("backfill finished",
		"migration", m.Name,
		"selected", len(docs),
		"patched", patched,
		"skipped", skipped,
	)
	return nil
}

func (r *Runner) setState(s State, current string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	r.current = current
}

// Done returns a channel closed once the runner reaches Complete or Failed.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Err returns the terminal error; nil while running or after success.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// State returns the current state and the migration being applied, if any.
func (r *Runner) State() (State, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.current
}

// Wait blocks until the runner finishes or ctx is done.
// Returns the terminal error, or ctx.Err() if ctx ended first.
func (r *Runner) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
