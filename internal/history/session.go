package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/transhist/internal/backup"
	"github.com/roach88/transhist/internal/config"
	"github.com/roach88/transhist/internal/merge"
	"github.com/roach88/transhist/internal/metadb"
	"github.com/roach88/transhist/internal/metrics"
	"github.com/roach88/transhist/internal/migrate"
	"github.com/roach88/transhist/internal/store"
)

// ErrNotReady is returned by record operations before migrations complete,
// and forever after a migration failure.
var ErrNotReady = errors.New("history store is not ready")

// Option configures Open.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	now        func() time.Time
	metrics    *metrics.Metrics
	migrations []migrate.Migration
	afterFunc  func(time.Duration, func()) backup.Timer
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock sets the wall clock used for record dates, journal rows and
// backup names.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithMetrics reports into m instead of a private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithMigrations replaces the history migration registry.
func WithMigrations(ms []migrate.Migration) Option {
	return func(o *options) {
		o.migrations = ms
	}
}

// WithBackupTimer replaces time.AfterFunc for regular backups.
func WithBackupTimer(fn func(time.Duration, func()) backup.Timer) Option {
	return func(o *options) {
		o.afterFunc = fn
	}
}

// Session is one open history store.
type Session struct {
	cfg     config.Config
	logger  *slog.Logger
	now     func() time.Time
	metrics *metrics.Metrics

	store     *store.Store
	meta      *metadb.DB
	backups   *backup.Manager
	runner    *migrate.Runner
	blacklist *merge.Blacklist
	merger    *merge.Merger
	worker    *merge.Worker
	scanLimit int

	cancel context.CancelFunc
}

// Open opens the store described by cfg, takes the startup backup and starts
// the migrations. It does not wait for them: use Ready or Wait.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	if o.migrations == nil {
		o.migrations = migrate.HistoryMigrations(o.logger)
	}

	s := &Session{
		cfg:       cfg,
		logger:    o.logger,
		now:       o.now,
		metrics:   o.metrics,
		scanLimit: cfg.History.Merge.LastRecordsToScan,
	}

	backupOpts := []backup.Option{
		backup.WithLogger(o.logger),
		backup.WithClock(o.now),
		backup.WithCopyGuard(s.freeze),
		backup.WithOnCreated(func(t backup.Type) {
			s.metrics.BackupsCreated.WithLabelValues(string(t)).Inc()
		}),
		backup.WithOnDeleted(func(t backup.Type, reason string) {
			s.metrics.BackupsDeleted.WithLabelValues(string(t), reason).Inc()
		}),
	}
	if o.afterFunc != nil {
		backupOpts = append(backupOpts, backup.WithAfterFunc(o.afterFunc))
	}
	s.backups = backup.NewManager(cfg.DatabasePath(), cfg.History.DatabaseName, cfg.History.Sync.BackupSettings(), backupOpts...)

	// The startup backup copies the file as it was before any migration.
	if err := s.backups.Start(); err != nil {
		s.logger.Error("startup backup failed", "error", err)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		s.backups.Stop()
		return nil, fmt.Errorf("open history store: %w", err)
	}
	s.store = st

	meta, err := metadb.Open(cfg.MetaPath())
	if err != nil {
		s.backups.Stop()
		st.Close()
		return nil, fmt.Errorf("open history metadata: %w", err)
	}
	s.meta = meta

	s.runner = migrate.NewRunner(st, o.migrations,
		migrate.WithJournal(meta, cfg.History.DatabaseName),
		migrate.WithLogger(o.logger),
		migrate.WithClock(o.now),
		migrate.WithOnApplied(func(m migrate.Migration, d time.Duration) {
			s.metrics.ObserveMigration(m.Name, d)
		}),
	)

	s.blacklist = merge.NewBlacklist(meta, o.logger)
	s.merger = merge.NewMerger(st, o.logger, o.now)
	s.worker = merge.NewWorker(o.logger, merge.WithScanLimit(s.scanLimit))
	s.worker.Start()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.runner.Start(runCtx)

	go func() {
		<-s.runner.Done()
		if err := s.runner.Err(); err != nil {
			s.logger.Error("history migrations failed; store will not become ready", "error", err)
			return
		}
		s.logger.Info("history store ready", "path", st.Path())
	}()

	return s, nil
}

func (s *Session) freeze(fn func() error) error {
	if s.store == nil {
		return fn()
	}
	return s.store.Freeze(fn)
}

// Ready is closed once the migration runner has finished, successfully or not.
func (s *Session) Ready() <-chan struct{} {
	return s.runner.Done()
}

// Wait blocks until migrations finish and returns their error.
func (s *Session) Wait(ctx context.Context) error {
	return s.runner.Wait(ctx)
}

// MigrationState reports the runner state and the migration in progress.
func (s *Session) MigrationState() (migrate.State, string) {
	return s.runner.State()
}

func (s *Session) checkReady() error {
	select {
	case <-s.runner.Done():
	default:
		return ErrNotReady
	}
	if err := s.runner.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

// Metrics returns the session counters.
func (s *Session) Metrics() *metrics.Metrics {
	return s.metrics
}

// Backups returns the backup manager.
func (s *Session) Backups() *backup.Manager {
	return s.backups
}

// Store returns the record store.
func (s *Session) Store() *store.Store {
	return s.store
}

// UpdateSettings applies changed sync settings to the regular backups.
func (s *Session) UpdateSettings(cfg config.Config) {
	s.backups.UpdateSettings(cfg.History.Sync.BackupSettings())
}

// Close stops background work and releases both databases.
// In-flight migrations are cancelled and awaited first.
func (s *Session) Close() error {
	s.backups.Stop()
	s.worker.Stop()
	s.cancel()
	<-s.runner.Done()

	return errors.Join(s.store.Close(), s.meta.Close())
}
