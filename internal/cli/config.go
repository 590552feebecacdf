package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/transhist/internal/config"
)

// ConfigInitResult reports a written settings file.
type ConfigInitResult struct {
	Path string `json:"path"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the settings file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(rootOpts, cmd, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing settings file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(rootOpts, cmd)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func runConfigInit(opts *RootOptions, cmd *cobra.Command, force bool) error {
	f := opts.formatter(cmd)
	path := opts.ConfigPath

	if _, err := os.Stat(path); err == nil && !force {
		return NewExitError(ExitCommandError, fmt.Sprintf("settings file already exists: %s (use --force to overwrite)", path))
	}

	cfg := config.Default()
	cfg.DataDir = opts.Config.DataDir
	if err := config.WriteFile(path, cfg); err != nil {
		return f.Fail(ExitFailure, "failed to write settings", err)
	}

	if f.Format == "json" {
		return f.Success(ConfigInitResult{Path: path})
	}
	fmt.Fprintf(f.Writer, "✓ Wrote %s\n", path)
	return nil
}

func runConfigShow(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(opts.Config)
	}

	data, err := config.Marshal(opts.Config)
	if err != nil {
		return f.Fail(ExitFailure, "failed to render settings", err)
	}
	fmt.Fprintf(f.Writer, "# %s\n%s", opts.ConfigPath, data)
	return nil
}
