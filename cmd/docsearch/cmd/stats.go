package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/docstore"
	"github.com/Aman-CERP/docsearch/internal/output"
)

// statsView is the JSON shape of `docsearch stats --json`.
type statsView struct {
	State             string `json:"state"`
	Backend           string `json:"backend"`
	TotalChunks       int    `json:"total_chunks"`
	SourceFiles       int    `json:"source_files"`
	Dimension         int    `json:"dimension"`
	MinYear           *int   `json:"min_year,omitempty"`
	MaxYear           *int   `json:"max_year,omitempty"`
	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	EmbeddingCached   bool   `json:"embedding_cached"`
	DocumentsRoot     string `json:"documents_root"`
}

func newStatsView(st *docstore.Stats) statsView {
	return statsView{
		State:             string(st.State),
		Backend:           st.Backend,
		TotalChunks:       st.ChunkCount,
		SourceFiles:       st.SourceCount,
		Dimension:         st.Dimension,
		MinYear:           st.MinYear,
		MaxYear:           st.MaxYear,
		EmbeddingProvider: string(st.Embedder.Provider),
		EmbeddingModel:    st.Embedder.Model,
		EmbeddingCached:   st.Embedder.Cached,
		DocumentsRoot:     st.DocumentsRoot,
	}
}

func newStatsCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withApp(cmd.Context(), func(a *app) error {
				return runStats(cmd.Context(), cmd, a, jsonOutput)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print statistics as JSON")
	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, a *app, jsonOutput bool) error {
	st, err := a.docs.Stats(ctx)
	if err != nil {
		return err
	}
	view := newStatsView(st)
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), view)
	}

	out := output.New(cmd.OutOrStdout())
	out.Header("Index")
	out.KeyValue("State", view.State)
	out.KeyValue("Backend", view.Backend)
	out.KeyValue("Chunks", view.TotalChunks)
	out.KeyValue("Source files", view.SourceFiles)
	out.KeyValue("Dimension", view.Dimension)
	if view.MinYear != nil && view.MaxYear != nil {
		out.KeyValue("Years", fmt.Sprintf("%d-%d", *view.MinYear, *view.MaxYear))
	}
	out.KeyValue("Embeddings", fmt.Sprintf("%s (%s)", view.EmbeddingProvider, view.EmbeddingModel))
	out.KeyValue("Documents root", view.DocumentsRoot)
	return nil
}
