package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/app"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
)

func newScrapeCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape the configured listing sources once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, rt *runtime, a *app.App) error {
				var (
					runs []events.ScrapeRun
					err  error
				)
				if source != "" {
					var run events.ScrapeRun
					run, err = a.Ingest().ScrapeSource(ctx, source)
					if run.ID != "" {
						runs = append(runs, run)
					}
				} else {
					runs, err = a.Ingest().ScrapeAll(ctx)
				}
				for _, run := range runs {
					rt.logger.Info("scrape run finished",
						zap.String("source", run.Source),
						zap.String("status", string(run.Status)),
						zap.Int("upserted", run.ItemsUpserted),
					)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(runs); encErr != nil {
					return encErr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "scrape only the named source")
	return cmd
}
