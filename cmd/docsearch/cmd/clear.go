package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/output"
)

func newClearCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every chunk from the index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withApp(cmd.Context(), func(a *app) error {
				if err := a.docs.ClearIndex(cmd.Context()); err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Success("Index cleared successfully")
				return nil
			})
		},
	}
}
