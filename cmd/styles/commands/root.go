package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/styles/internal/app"
	"github.com/jaennil/guide_helper/backend/styles/pkg/config"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
	"github.com/spf13/cobra"
)

// closeTimeout bounds pending cache stores and telemetry flushing on exit.
const closeTimeout = 30 * time.Second

// Execute runs the root command.
func Execute(ctx context.Context, version string) error {
	return newRootCommand(version).ExecuteContext(ctx)
}

func newRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "styles",
		Short: "Raster tiles from a hosted map style",
		Long: `styles serves raster tiles rendered from a hosted map style and can
pre-seed its tile cache for a bounding box.

Configuration is read from the environment and an optional .env file
(STYLE_*, RETRY_*, UPSTREAM_*, CACHE_*, REDIS_*, SQLITE_*, HTTP_*, LOGGER_*,
TELEMETRY_*).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newSeedCommand())

	return rootCmd
}

// setup loads the configuration and wires the application.
func setup(ctx context.Context) (*app.App, *logger.ZapLogger, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	l := logger.NewZapLogger(cfg.Logger.Level, cfg.Logger.Format)

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Sync()
		return nil, nil, err
	}

	return a, l, nil
}
