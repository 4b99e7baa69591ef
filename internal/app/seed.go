package app

import (
	"context"
	"time"

	"github.com/jaennil/guide_helper/backend/styles/internal/usecase"
)

// Seed warms the configured cache with every tile of req.
func (a *App) Seed(ctx context.Context, req usecase.SeedRequest) (usecase.SeedReport, error) {
	start := time.Now()

	a.logger.Info("seeding tiles",
		"bound", req.Bound,
		"min_zoom", req.MinZoom,
		"max_zoom", req.MaxZoom,
		"concurrency", req.Concurrency,
	)

	report, err := a.seed.Seed(ctx, req)

	a.logger.Debug("seed returned", "duration", time.Since(start), "error", err)

	return report, err
}
