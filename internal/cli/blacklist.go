package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BlacklistResult reports a blacklisted pair.
type BlacklistResult struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
}

// NewBlacklistCommand creates the blacklist command.
func NewBlacklistCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "blacklist <source-id> <target-id>",
		Short: "Never suggest merging two records again",
		Long: `Record that two records are not duplicates. The pair is matched in
both orders and is never suggested by "transhist candidates" again.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlacklist(rootOpts, cmd, args[0], args[1])
		},
	}
}

func runBlacklist(opts *RootOptions, cmd *cobra.Command, sourceID, targetID string) (err error) {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := opts.openSession(ctx, f)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := opts.closeSession(s); err == nil && cerr != nil {
			err = WrapExitError(ExitFailure, "failed to close history store", cerr)
		}
	}()

	if err := s.BlacklistRecords(ctx, sourceID, targetID); err != nil {
		return f.Fail(ExitFailure, "failed to update merge blacklist", err)
	}

	if f.Format == "json" {
		return f.Success(BlacklistResult{SourceID: sourceID, TargetID: targetID})
	}
	fmt.Fprintf(f.Writer, "✓ %s and %s will not be suggested for merging\n", sourceID, targetID)
	return nil
}
