// Package config loads the settings file.
//
// The file is YAML. It is unified with an embedded CUE schema that fills in
// defaults and rejects out-of-range values and unknown keys.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/transhist/internal/backup"
)

//go:embed schema.cue
var schemaCUE string

// Environment variables consulted by the command line.
const (
	EnvConfig  = "TRANSHIST_CONFIG"
	EnvDataDir = "TRANSHIST_DATA_DIR"
)

// Config is the full settings tree.
type Config struct {
	DataDir string        `json:"dataDir" yaml:"dataDir"`
	Log     LogConfig     `json:"log" yaml:"log"`
	History HistoryConfig `json:"history" yaml:"history"`
}

// LogConfig controls the default slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// HistoryConfig holds history store settings.
type HistoryConfig struct {
	DatabaseName string      `json:"databaseName" yaml:"databaseName"`
	Merge        MergeConfig `json:"merge" yaml:"merge"`
	Sync         SyncConfig  `json:"sync" yaml:"sync"`
}

// MergeConfig holds merge candidate settings.
type MergeConfig struct {
	LastRecordsToScan int `json:"lastRecordsToScan" yaml:"lastRecordsToScan"`
}

// SyncConfig holds synchronization and backup settings.
// Interval and ContinuousSync belong to the remote synchronizer; they are
// carried so that one settings file serves both.
type SyncConfig struct {
	Interval                             int  `json:"interval" yaml:"interval"`
	ContinuousSync                       bool `json:"continuousSync" yaml:"continuousSync"`
	BackupOnApplicationStart             bool `json:"backupOnApplicationStart" yaml:"backupOnApplicationStart"`
	BackupOnApplicationStartNumberToKeep int  `json:"backupOnApplicationStartNumberToKeep" yaml:"backupOnApplicationStartNumberToKeep"`
	BackupRegularly                      bool `json:"backupRegularly" yaml:"backupRegularly"`
	BackupRegularlyIntervalDays          int  `json:"backupRegularlyIntervalDays" yaml:"backupRegularlyIntervalDays"`
	BackupRegularlyNumberToKeep          int  `json:"backupRegularlyNumberToKeep" yaml:"backupRegularlyNumberToKeep"`
}

// BackupSettings converts the sync section into backup manager settings.
func (s SyncConfig) BackupSettings() backup.Settings {
	return backup.Settings{
		OnStart:             s.BackupOnApplicationStart,
		StartupKeep:         s.BackupOnApplicationStartNumberToKeep,
		Regularly:           s.BackupRegularly,
		RegularIntervalDays: s.BackupRegularlyIntervalDays,
		RegularKeep:         s.BackupRegularlyNumberToKeep,
	}
}

// Error is a settings validation failure.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid settings %s: %s", e.Source, cueerrors.Details(e.Err, nil))
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Default returns the settings of an empty file.
func Default() Config {
	cfg, err := Parse(nil, "defaults")
	if err != nil {
		panic(fmt.Sprintf("config schema defaults: %v", err))
	}
	return cfg
}

// Load reads the settings file at path. A missing file yields defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read settings: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes YAML settings and applies the schema. source names the
// input in error messages.
func Parse(data []byte, source string) (Config, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse settings %s: %w", source, err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile settings schema: %w", err)
	}

	v := schema.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return Config{}, &Error{Source: source, Err: err}
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, &Error{Source: source, Err: err}
	}
	return cfg, nil
}

// Marshal renders settings as YAML.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return data, nil
}

// WriteFile writes settings as YAML, creating parent folders.
func WriteFile(path string, cfg Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings folder: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// DatabasePath is the record store file for these settings.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.History.DatabaseName+".db")
}

// MetaPath is the auxiliary SQLite database for these settings.
func (c Config) MetaPath() string {
	return filepath.Join(c.DataDir, "meta.db")
}
