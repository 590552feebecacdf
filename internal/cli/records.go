package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/transhist/internal/history"
)

// RecordsOptions holds flags for the records command.
type RecordsOptions struct {
	*RootOptions
	Filter history.RecordFilter
}

// NewRecordsCommand creates the records command.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List history records",
		Long:  "List history records, most recently translated first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecords(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Filter.StarredOnly, "starred", false, "only starred records")
	cmd.Flags().BoolVar(&opts.Filter.IncludeArchived, "archived", false, "include archived records")
	cmd.Flags().StringVar(&opts.Filter.SourceLanguage, "from", "", "only this source language")
	cmd.Flags().StringVar(&opts.Filter.TargetLanguage, "to", "", "only this target language")
	cmd.Flags().StringVar(&opts.Filter.Tag, "tag", "", "only records with this tag")
	cmd.Flags().IntVarP(&opts.Filter.Limit, "limit", "n", 50, "maximum records to list (0 = all)")

	return cmd
}

func runRecords(opts *RecordsOptions, cmd *cobra.Command) (err error) {
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

	records, err := s.Records(ctx, opts.Filter)
	if err != nil {
		return f.Fail(ExitFailure, "failed to list records", err)
	}

	if f.Format == "json" {
		return f.Success(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(f.Writer, "No records.")
		return nil
	}
	for _, r := range records {
		star := " "
		if r.IsStarred {
			star = "★"
		}
		archived := ""
		if r.IsArchived {
			archived = " (archived)"
		}
		fmt.Fprintf(f.Writer, "%s %s  %s→%s ×%-3d %q → %q%s\n",
			star,
			time.UnixMilli(r.LastTranslatedDate).UTC().Format("2006-01-02"),
			r.SourceLanguage, r.TargetLanguage, r.TranslationsNumber,
			r.Sentence, r.Translation(), archived)
	}
	return nil
}
