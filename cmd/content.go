package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/app"
)

func newContentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "content",
		Short: "Generate today's content bundle",
		Long: `Builds the daily post options, writes them to the pending content
directory and, when rendering is enabled, uploads the story images.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, _ *runtime, a *app.App) error {
				result, err := a.GenerateContent(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%d options, %d stories)\n",
					result.Path, len(result.Bundle.Options), len(result.Stories))
				return err
			})
		},
	}
}
