package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/roach88/transhist/internal/config"
	"github.com/roach88/transhist/internal/history"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	DataDir     string
	MetricsFile string

	// Config is loaded in PersistentPreRunE.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the transhist CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "transhist",
		Short: "transhist - translation history store",
		Long: `Maintain a local translation history store: migrate legacy data,
find duplicate records, merge or blacklist them, and keep backups.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "settings file (env "+config.EnvConfig+")")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data folder (env "+config.EnvDataDir+")")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCandidatesCommand(opts))
	cmd.AddCommand(NewMergeCommand(opts))
	cmd.AddCommand(NewBlacklistCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewRecordsCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// load reads .env, resolves the settings file and installs the logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return WrapExitError(ExitCommandError, "failed to read .env", err)
	}

	if o.ConfigPath == "" {
		o.ConfigPath = os.Getenv(config.EnvConfig)
	}
	if o.ConfigPath == "" {
		o.ConfigPath = filepath.Join(defaultDataDir(), "settings.yaml")
	}

	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load settings", err)
	}

	switch {
	case o.DataDir != "":
		cfg.DataDir = o.DataDir
	case os.Getenv(config.EnvDataDir) != "":
		cfg.DataDir = os.Getenv(config.EnvDataDir)
	case cfg.DataDir == "":
		cfg.DataDir = defaultDataDir()
	}
	o.Config = cfg

	slog.SetDefault(slog.New(newLogHandler(cmd, cfg.Log, o.Verbose)))
	return nil
}

func newLogHandler(cmd *cobra.Command, lc config.LogConfig, verbose bool) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.NewJSONHandler(cmd.ErrOrStderr(), handlerOpts)
	}
	return slog.NewTextHandler(cmd.ErrOrStderr(), handlerOpts)
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "transhist")
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openSession opens the history store and waits until it is ready.
// A migration failure is reported and returned as ExitFailure.
func (o *RootOptions) openSession(ctx context.Context, f *OutputFormatter) (*history.Session, error) {
	s, err := history.Open(ctx, o.Config, history.WithLogger(slog.Default()))
	if err != nil {
		return nil, f.Fail(ExitCommandError, "failed to open history store", err)
	}

	start := time.Now()
	if err := s.Wait(ctx); err != nil {
		s.Close()
		return nil, f.Fail(ExitFailure, "history migrations failed", err)
	}
	f.VerboseLog("History store ready in %s: %s", time.Since(start).Round(time.Millisecond), o.Config.DatabasePath())
	return s, nil
}

// closeSession writes the metrics file, if requested, and closes s.
func (o *RootOptions) closeSession(s *history.Session) error {
	var metricsErr error
	if o.MetricsFile != "" {
		metricsErr = s.Metrics().WriteToTextfile(o.MetricsFile)
	}
	return errors.Join(metricsErr, s.Close())
}
