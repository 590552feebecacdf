package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/transhist/internal/backup"
	"github.com/roach88/transhist/internal/metrics"
)

// BackupOptions holds flags for the backup commands.
type BackupOptions struct {
	*RootOptions
	Type string
}

// BackupEntry is one listed backup file.
type BackupEntry struct {
	Type     backup.Type `json:"type"`
	Filename string      `json:"filename"`
	Created  *time.Time  `json:"created,omitempty"`
}

// NewBackupCommand creates the backup command group.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a backup of the history store",
		Long: `Copy the history store file into its backup series and prune the series
to the configured number of files.

A backup whose timestamped name already exists is skipped with a warning.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Type, "type", string(backup.TypeRegular), "backup series (startup|regular)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backup files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupList(opts, cmd)
		},
	})

	return cmd
}

func (o *BackupOptions) manager(m *metrics.Metrics) *backup.Manager {
	cfg := o.Config
	return backup.NewManager(cfg.DatabasePath(), cfg.History.DatabaseName, cfg.History.Sync.BackupSettings(),
		backup.WithLogger(slog.Default()),
		backup.WithOnCreated(func(t backup.Type) {
			m.BackupsCreated.WithLabelValues(string(t)).Inc()
		}),
		backup.WithOnDeleted(func(t backup.Type, reason string) {
			m.BackupsDeleted.WithLabelValues(string(t), reason).Inc()
		}),
	)
}

func runBackup(opts *BackupOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	var keep int
	settings := opts.Config.History.Sync.BackupSettings()
	switch backup.Type(opts.Type) {
	case backup.TypeStartup:
		keep = settings.StartupKeep
	case backup.TypeRegular:
		keep = settings.RegularKeep
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid backup type %q: must be startup or regular", opts.Type))
	}

	m := metrics.New()
	result, err := opts.manager(m).Run(backup.Type(opts.Type), keep)
	if opts.MetricsFile != "" {
		if werr := m.WriteToTextfile(opts.MetricsFile); werr != nil {
			slog.Warn("failed to write metrics file", "path", opts.MetricsFile, "error", werr)
		}
	}
	if errors.Is(err, backup.ErrBackupExists) {
		fmt.Fprintf(f.GetErrWriter(), "Warning: %v\n", err)
		err = nil
	}
	if err != nil {
		if ferr := f.Error(ErrCodeBackup, fmt.Sprintf("backup failed: %v", err), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "backup failed", err)
	}

	if f.Format == "json" {
		return f.Success(result)
	}
	if result.Path == "" {
		fmt.Fprintf(f.Writer, "Nothing to back up: %s does not exist\n", opts.Config.DatabasePath())
		return nil
	}
	fmt.Fprintf(f.Writer, "✓ %s\n", result.Path)
	for _, name := range result.Deleted {
		fmt.Fprintf(f.Writer, "  removed %s\n", name)
	}
	return nil
}

func runBackupList(opts *BackupOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	mgr := opts.manager(metrics.New())

	entries := []BackupEntry{}
	for _, t := range []backup.Type{backup.TypeStartup, backup.TypeRegular} {
		files, err := mgr.Backups(t)
		if err != nil {
			return f.Fail(ExitFailure, "failed to list backups", err)
		}
		for _, b := range files {
			e := BackupEntry{Type: t, Filename: b.Filename}
			if b.Valid() {
				created := b.Created
				e.Created = &created
			}
			entries = append(entries, e)
		}
	}

	if f.Format == "json" {
		return f.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(f.Writer, "No backups.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(f.Writer, "%-8s %s\n", e.Type, e.Filename)
	}
	return nil
}
