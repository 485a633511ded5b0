package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/docstore"
	"github.com/Aman-CERP/docsearch/internal/output"
)

type indexOptions struct {
	reindex bool
	json    bool
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [files...]",
		Short: "Index documents",
		Long: `Index PDF and DOCX files under documents.root.

Without arguments every supported file under the root is considered;
unchanged files are skipped by content hash and files that disappeared are
removed. Named files are indexed on their own. --reindex rebuilds the index
from scratch in one commit.`,
		Example: `  docsearch index
  docsearch index reports/1852-claims.pdf
  docsearch index --reindex`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd.Context(), func(a *app) error {
				return runIndex(cmd.Context(), cmd, a, args, opts)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.reindex, "reindex", false, "Drop the existing index and rebuild it")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the run summary as JSON")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, a *app, files []string, opts indexOptions) error {
	out := output.New(cmd.OutOrStdout())
	var progress *output.Progress
	if !opts.json {
		progress = out.NewProgress("Indexing")
		defer progress.Finish()
	}

	run := docstore.IndexOptions{Files: files, Reindex: opts.reindex}
	if progress != nil {
		run.Progress = progress.Update
	}
	sum, err := a.docs.IndexDocuments(ctx, run)
	if err != nil {
		return err
	}
	if progress != nil {
		progress.Finish()
	}

	if opts.json {
		return writeJSON(cmd.OutOrStdout(), sum)
	}

	st, err := a.docs.Stats(ctx)
	if err != nil {
		return err
	}
	failures := make([]output.Failure, 0, len(sum.Failures))
	for _, f := range sum.Failures {
		failures = append(failures, output.Failure{File: f.File, Reason: f.Reason})
	}
	out.Summary(output.IndexSummary{
		Processed:   sum.FilesProcessed,
		Skipped:     sum.FilesSkipped,
		Removed:     sum.FilesRemoved,
		ChunksAdded: sum.ChunksAdded,
		TotalChunks: st.ChunkCount,
		Failures:    failures,
		Root:        a.docs.Root(),
	})
	return nil
}
