package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/transhist/internal/merge"
	"github.com/roach88/transhist/internal/record"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Source         string
	Target         string
	SourceLanguage string
	TargetLanguage string
	Forced         bool
}

// MergeResult reports a merge.
type MergeResult struct {
	Target        record.HistoryRecord `json:"target"`
	Source        record.HistoryRecord `json:"source"`
	AlreadyMerged bool                 `json:"alreadyMerged"`
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge one record into another",
		Long: `Fold the source record into the target record. The target gains the
source's translation count and tags; the source is archived and tagged
"Merged". Repeating a merge does not count the source twice.

Examples:
  transhist merge --source "hello" --target "Hello" --from en --to fr`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "sentence of the record merged away")
	cmd.Flags().StringVar(&opts.Target, "target", "", "sentence of the surviving record")
	cmd.Flags().StringVar(&opts.SourceLanguage, "from", "", "source language")
	cmd.Flags().StringVar(&opts.TargetLanguage, "to", "", "target language")
	cmd.Flags().BoolVar(&opts.Forced, "forced", false, "records are forced translations")
	for _, name := range []string{"source", "target", "from", "to"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func (o *MergeOptions) key(sentence string) record.TranslationKey {
	return record.TranslationKey{
		Sentence:            sentence,
		IsForcedTranslation: o.Forced,
		SourceLanguage:      o.SourceLanguage,
		TargetLanguage:      o.TargetLanguage,
	}
}

func runMerge(opts *MergeOptions, cmd *cobra.Command) (err error) {
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

	out, err := s.MergeRecords(ctx, opts.key(opts.Source), opts.key(opts.Target))
	if err != nil {
		return f.Fail(ExitFailure, "merge failed", err)
	}

	if f.Format == "json" {
		return f.Success(MergeResult{Target: out.Target, Source: out.Source, AlreadyMerged: out.AlreadyMerged})
	}
	printMergeOutcome(f, out)
	return nil
}

func printMergeOutcome(f *OutputFormatter, out merge.Outcome) {
	if out.AlreadyMerged {
		fmt.Fprintf(f.Writer, "Already merged: %q into %q\n", out.Source.Sentence, out.Target.Sentence)
		return
	}
	fmt.Fprintf(f.Writer, "✓ Merged %q into %q\n", out.Source.Sentence, out.Target.Sentence)
	fmt.Fprintf(f.Writer, "  target: ×%d %v\n", out.Target.TranslationsNumber, out.Target.Tags)
	fmt.Fprintf(f.Writer, "  source: archived %v\n", out.Source.Tags)
}
