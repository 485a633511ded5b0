package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/output"
	"github.com/Aman-CERP/docsearch/internal/store"
)

type searchOptions struct {
	k        int
	year     int
	from     int
	to       int
	location string
	source   string
	json     bool
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long: `Search indexed documents by meaning.

Results can be narrowed to a year, a year range, a location named in the
text, or a single source file.`,
		Example: `  docsearch search "gold found near the creek"
  docsearch search "mining claims" --from 1850 --to 1860 -k 10
  docsearch search "survey" --location Deadwood --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			filter, err := opts.filter(cmd)
			if err != nil {
				return err
			}
			return root.withApp(cmd.Context(), func(a *app) error {
				return runSearch(cmd.Context(), cmd, a, query, filter, opts)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.k, "max-results", "k", 5, "Maximum number of results")
	cmd.Flags().IntVar(&opts.year, "year", 0, "Only chunks mentioning this year")
	cmd.Flags().IntVar(&opts.from, "from", 0, "Start of a year range (requires --to)")
	cmd.Flags().IntVar(&opts.to, "to", 0, "End of a year range (requires --from)")
	cmd.Flags().StringVar(&opts.location, "location", "", "Only chunks mentioning this location")
	cmd.Flags().StringVar(&opts.source, "source", "", "Only chunks from this source file")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print results as JSON")

	return cmd
}

// filter builds a store filter from the flags that were set.
func (o searchOptions) filter(cmd *cobra.Command) (*store.Filter, error) {
	f := &store.Filter{Location: o.location, SourceFile: o.source}
	if cmd.Flags().Changed("year") {
		year := o.year
		f.Year = &year
	}
	fromSet, toSet := cmd.Flags().Changed("from"), cmd.Flags().Changed("to")
	switch {
	case fromSet && toSet:
		f.YearRange = &[2]int{o.from, o.to}
	case fromSet || toSet:
		return nil, docerrors.New(docerrors.ErrCodeInvalidQuery, "--from and --to must be given together", nil).
			WithSuggestion("Pass both ends of the range, e.g. --from 1850 --to 1860")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// searchHit is the JSON shape of one result.
type searchHit struct {
	Rank       int     `json:"rank"`
	Similarity float64 `json:"similarity"`
	SourceFile string  `json:"source_file"`
	ChunkIndex int     `json:"chunk_index"`
	DateYear   *int    `json:"date_year,omitempty"`
	Location   string  `json:"location,omitempty"`
	Text       string  `json:"text"`
}

func runSearch(ctx context.Context, cmd *cobra.Command, a *app, query string, filter *store.Filter, opts searchOptions) error {
	results, err := a.docs.SearchDocuments(ctx, query, opts.k, filter)
	if err != nil {
		return err
	}

	if opts.json {
		hits := make([]searchHit, 0, len(results))
		for i, r := range results {
			hits = append(hits, searchHit{
				Rank:       i + 1,
				Similarity: r.Similarity,
				SourceFile: r.SourceFile,
				ChunkIndex: r.ChunkIndex,
				DateYear:   r.DateYear,
				Location:   r.Location,
				Text:       r.Text,
			})
		}
		return writeJSON(cmd.OutOrStdout(), map[string]any{"query": query, "results": hits})
	}

	hits := make([]output.Hit, 0, len(results))
	for i, r := range results {
		hits = append(hits, output.Hit{
			Rank:       i + 1,
			Similarity: r.Similarity,
			SourceFile: r.SourceFile,
			ChunkIndex: r.ChunkIndex,
			Year:       r.DateYear,
			Location:   r.Location,
			Text:       r.Text,
		})
	}
	output.New(cmd.OutOrStdout()).SearchResults(query, hits)
	return nil
}
