// Package cmd defines the CLI commands of the agenda executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/app"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/config"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/logging"
)

// runtime carries what PersistentPreRunE prepared for a subcommand.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

type runtimeKey struct{}

// buildApp is the application factory. Tests replace it.
var buildApp = app.Build

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Cultural agenda aggregator for Salvador.",
		Long: `agenda collects cultural events from Instagram captions, story
screenshots and listing pages, merges duplicates, serves them over HTTP
and prepares daily social media content.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey{}).(*runtime); ok {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables use the AGENDA_ prefix")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newContentCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// withApp builds the application, runs fn and closes the application.
func withApp(ctx context.Context, fn func(context.Context, *runtime, *app.App) error) error {
	rt, err := resolveRuntime(ctx)
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, rt, a)
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
