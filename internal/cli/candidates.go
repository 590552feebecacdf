package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/transhist/internal/record"
)

// NewCandidatesCommand creates the candidates command.
func NewCandidatesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "candidates",
		Short: "List suggested merges of duplicate records",
		Long: `Scan active records for duplicates: the same sentence (ignoring case)
translated between the same languages. Blacklisted pairs are never suggested.

The first record of each group is the suggested merge target.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCandidates(rootOpts, cmd)
		},
	}
}

func runCandidates(opts *RootOptions, cmd *cobra.Command) (err error) {
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

	candidates, err := s.FindMergeCandidates(ctx)
	if err != nil {
		return f.Fail(ExitFailure, "failed to find merge candidates", err)
	}

	if f.Format == "json" {
		return f.Success(candidates)
	}
	if len(candidates) == 0 {
		fmt.Fprintln(f.Writer, "No merge candidates.")
		return nil
	}

	fmt.Fprintf(f.Writer, "%d merge candidate(s):\n\n", len(candidates))
	for _, c := range candidates {
		fmt.Fprintf(f.Writer, "%s\n", describe(c.Record))
		for _, m := range c.MergeRecords {
			fmt.Fprintf(f.Writer, "  ← %s\n", describe(m))
		}
	}
	return nil
}

func describe(m record.MergeHistoryRecord) string {
	forced := ""
	if m.IsForcedTranslation {
		forced = ", forced"
	}
	return fmt.Sprintf("%q %s→%s%s ×%d [%s]", m.Sentence, m.SourceLanguage, m.TargetLanguage, forced, m.TranslationsNumber, m.ID)
}
