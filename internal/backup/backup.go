package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"
)

// Type names a backup series.
type Type string

const (
	TypeStartup Type = "startup"
	TypeRegular Type = "regular"
)

const (
	dateLayout = "02-01-2006-15-04-05"
	extension  = "bak"

	// Day is the length of one regular-backup interval unit.
	Day = 24 * time.Hour
)

var backupDateRe = regexp.MustCompile(`(\d\d-\d\d-\d\d\d\d-\d\d-\d\d-\d\d)\.bak$`)

// ErrBackupExists is returned when the destination file already exists.
// It is not fatal: the previous file is left untouched.
var ErrBackupExists = errors.New("backup file already exists")

// Settings controls both backup series.
type Settings struct {
	OnStart             bool
	StartupKeep         int
	Regularly           bool
	RegularIntervalDays int
	RegularKeep         int
}

// RegularInterval is the configured regular-backup period.
func (s Settings) RegularInterval() time.Duration {
	return time.Duration(s.RegularIntervalDays) * Day
}

// Backup is one file in a series folder.
type Backup struct {
	Filename string
	// Created is zero when the filename carries no parsable date.
	Created time.Time
}

// Valid reports whether the filename carried a date.
func (b Backup) Valid() bool {
	return !b.Created.IsZero()
}

// Result describes one backup run.
type Result struct {
	Type    Type     `json:"type"`
	Path    string   `json:"path,omitempty"`
	Created bool     `json:"created"`
	Deleted []string `json:"deleted,omitempty"`
}

// Timer abstracts time.AfterFunc for tests.
type Timer interface {
	Stop() bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock sets the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithAfterFunc replaces time.AfterFunc for the regular-backup timer.
func WithAfterFunc(fn func(d time.Duration, f func()) Timer) Option {
	return func(m *Manager) {
		m.afterFunc = fn
	}
}

// WithCopyGuard wraps every file copy, e.g. with a lock that keeps writers
// out of the database file.
func WithCopyGuard(guard func(fn func() error) error) Option {
	return func(m *Manager) {
		m.guard = guard
	}
}

// WithOnCreated is called after every created backup.
func WithOnCreated(fn func(Type)) Option {
	return func(m *Manager) {
		m.onCreated = fn
	}
}

// WithOnDeleted is called after every deleted backup.
func WithOnDeleted(fn func(t Type, reason string)) Option {
	return func(m *Manager) {
		m.onDeleted = fn
	}
}

// Manager creates and prunes backups of one database file.
type Manager struct {
	dbPath string
	dbName string
	root   string

	logger    *slog.Logger
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) Timer
	onCreated func(Type)
	onDeleted func(Type, string)
	guard     func(func() error) error

	mu          sync.Mutex
	settings    Settings
	lastRegular time.Time
	timer       Timer
	generation  uint64
	closed      bool
}

// NewManager creates a Manager for the database file at dbPath.
// dbName is the backup filename prefix; backups live in
// <dir of dbPath>/backups.
func NewManager(dbPath, dbName string, settings Settings, opts ...Option) *Manager {
	m := &Manager{
		dbPath:   dbPath,
		dbName:   dbName,
		root:     filepath.Join(filepath.Dir(dbPath), "backups"),
		settings: settings,
		logger:   slog.Default(),
		now:      time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		guard: func(fn func() error) error {
			return fn()
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the folder of a series.
func (m *Manager) Dir(t Type) string {
	return filepath.Join(m.root, string(t))
}

// Start takes the startup backup if enabled and starts the regular timer if
// enabled. An existing destination file is logged and ignored.
func (m *Manager) Start() error {
	m.mu.Lock()
	settings := m.settings
	m.mu.Unlock()

	if settings.OnStart {
		if _, err := m.Run(TypeStartup, settings.StartupKeep); err != nil && !errors.Is(err, ErrBackupExists) {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if settings.Regularly {
		m.startRegularLocked()
	}
	return nil
}

// Run prunes the series down to keep-1 files and then copies the database
// into it, so at most keep files remain. A missing database file is not an
// error: there is nothing to back up yet.
func (m *Manager) Run(t Type, keep int) (Result, error) {
	res := Result{Type: t}
	dir := m.Dir(t)

	if _, err := os.Stat(m.dbPath); errors.Is(err, fs.ErrNotExist) {
		m.logger.Debug("no database file to back up", "type", t, "path", m.dbPath)
		return res, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, fmt.Errorf("create %s backups folder: %w", t, err)
	}

	existing, err := m.Backups(t)
	if err != nil {
		return res, err
	}
	deleted, err := m.prune(t, existing, keep-1)
	res.Deleted = deleted
	if err != nil {
		return res, err
	}

	name := fmt.Sprintf("%s.%s.%s", m.dbName, m.now().Format(dateLayout), extension)
	path := filepath.Join(dir, name)
	err = m.guard(func() error {
		return copyExclusive(m.dbPath, path)
	})
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			m.logger.Warn("backup not created", "type", t, "file", name, "error", ErrBackupExists)
			return res, fmt.Errorf("%s backup %s: %w", t, name, ErrBackupExists)
		}
		return res, fmt.Errorf("create %s backup: %w", t, err)
	}

	res.Path = path
	res.Created = true
	m.logger.Info("backup created", "type", t, "file", name)
	if m.onCreated != nil {
		m.onCreated(t)
	}
	return res, nil
}

// Backups lists the files of a series, oldest first. Files with no parsable
// date come first in name order.
func (m *Manager) Backups(t Type) ([]Backup, error) {
	entries, err := os.ReadDir(m.Dir(t))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s backups: %w", t, err)
	}

	backups := make([]Backup, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		backups = append(backups, Backup{Filename: e.Name(), Created: parseBackupDate(e.Name())})
	}
	sort.SliceStable(backups, func(i, j int) bool {
		return backups[i].Created.Before(backups[j].Created)
	})
	return backups, nil
}

func parseBackupDate(filename string) time.Time {
	match := backupDateRe.FindStringSubmatch(filename)
	if match == nil {
		return time.Time{}
	}
	created, err := time.ParseInLocation(dateLayout, match[1], time.Local)
	if err != nil {
		return time.Time{}
	}
	return created
}

func (m *Manager) prune(t Type, existing []Backup, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}

	var invalid, valid []Backup
	for _, b := range existing {
		if b.Valid() {
			valid = append(valid, b)
		} else {
			invalid = append(invalid, b)
		}
	}

	var deleted []string
	for _, b := range invalid {
		if err := m.delete(t, b.Filename, "invalid filename"); err != nil {
			return deleted, err
		}
		deleted = append(deleted, b.Filename)
	}

	excess := len(valid) - keep
	for i := 0; i < excess; i++ {
		if err := m.delete(t, valid[i].Filename, "number of backups to keep has been exceeded"); err != nil {
			return deleted, err
		}
		deleted = append(deleted, valid[i].Filename)
	}
	return deleted, nil
}

func (m *Manager) delete(t Type, filename, reason string) error {
	if err := os.Remove(filepath.Join(m.Dir(t), filename)); err != nil {
		return fmt.Errorf("delete %s backup %s: %w", t, filename, err)
	}
	m.logger.Info("backup deleted", "type", t, "file", filename, "reason", reason)
	if m.onDeleted != nil {
		m.onDeleted(t, reason)
	}
	return nil
}

func copyExclusive(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
