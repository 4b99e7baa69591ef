package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/jaennil/guide_helper/backend/styles/internal/provider"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
	"github.com/jaennil/guide_helper/backend/styles/pkg/metrics"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/errgroup"
)

type SeedRequest struct {
	Bound       orb.Bound
	MinZoom     int
	MaxZoom     int
	Concurrency int
}

type SeedReport struct {
	Total      int64
	Cached     int64
	Fetched    int64
	Failed     int64
	OutOfRange int64
}

// SeedUseCase warms the tile cache for every tile covering a bound.
type SeedUseCase struct {
	tiles  *TileUseCase
	logger logger.Logger
}

func NewSeedUseCase(tiles *TileUseCase, l logger.Logger) *SeedUseCase {
	return &SeedUseCase{
		tiles:  tiles,
		logger: l,
	}
}

// Seed fetches every tile of req. Individual tile failures are counted, not
// returned; the error is non-nil only for invalid input or a cancelled ctx.
func (uc *SeedUseCase) Seed(ctx context.Context, req SeedRequest) (SeedReport, error) {
	var report SeedReport

	if req.MinZoom < 0 || req.MaxZoom < req.MinZoom || req.MaxZoom > 30 {
		return report, fmt.Errorf("invalid zoom range [%d, %d]", req.MinZoom, req.MaxZoom)
	}
	if _, err := uc.tiles.WhenReady(ctx); err != nil {
		return report, err
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

levels:
	for z := req.MinZoom; z <= req.MaxZoom; z++ {
		minTile, maxTile := TileRange(req.Bound, maptile.Zoom(z))
		uc.logger.Info("seeding level", "z", z, "tiles", int64(maxTile.X-minTile.X+1)*int64(maxTile.Y-minTile.Y+1))

		for x := minTile.X; x <= maxTile.X; x++ {
			for y := minTile.Y; y <= maxTile.Y; y++ {
				if gctx.Err() != nil {
					break levels
				}
				z, x, y := z, int(x), int(y)
				atomic.AddInt64(&report.Total, 1)

				g.Go(func() error {
					uc.seedTile(gctx, &report, z, x, y)
					return nil
				})
			}
		}
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	// fetched tiles only count as seeded once they are in the cache
	if err := uc.tiles.Flush(ctx); err != nil {
		return report, err
	}

	uc.logger.Info("seeding finished",
		"total", report.Total,
		"cached", report.Cached,
		"fetched", report.Fetched,
		"failed", report.Failed,
		"out_of_range", report.OutOfRange,
	)
	return report, nil
}

func (uc *SeedUseCase) seedTile(ctx context.Context, report *SeedReport, z, x, y int) {
	tile, err := uc.tiles.GetTile(ctx, z, x, y)
	switch {
	case errors.Is(err, provider.ErrLevelOutOfRange):
		atomic.AddInt64(&report.OutOfRange, 1)
		metrics.SeedTiles.WithLabelValues("out_of_range").Inc()
	case err != nil:
		atomic.AddInt64(&report.Failed, 1)
		metrics.SeedTiles.WithLabelValues("failed").Inc()
		uc.logger.Warn("seeding tile failed", "z", z, "x", x, "y", y, "error", err)
	case tile.Source == SourceCache:
		atomic.AddInt64(&report.Cached, 1)
		metrics.SeedTiles.WithLabelValues("cached").Inc()
	default:
		atomic.AddInt64(&report.Fetched, 1)
		metrics.SeedTiles.WithLabelValues("fetched").Inc()
	}
}

// TileRange returns the top-left and bottom-right tiles covering b at zoom z.
func TileRange(b orb.Bound, z maptile.Zoom) (maptile.Tile, maptile.Tile) {
	clampLat := func(lat float64) float64 {
		return math.Max(math.Min(lat, provider.WebMercatorBound.Max.Lat()), provider.WebMercatorBound.Min.Lat())
	}
	clampLon := func(lon float64) float64 {
		return math.Max(math.Min(lon, 180), -180)
	}

	a := maptile.At(orb.Point{clampLon(b.Min.Lon()), clampLat(b.Max.Lat())}, z)
	c := maptile.At(orb.Point{clampLon(b.Max.Lon()), clampLat(b.Min.Lat())}, z)

	last := uint32(1)<<uint32(z) - 1
	clampTile := func(v uint32) uint32 {
		if v > last {
			return last
		}
		return v
	}

	topLeft := maptile.New(clampTile(min(a.X, c.X)), clampTile(min(a.Y, c.Y)), z)
	bottomRight := maptile.New(clampTile(max(a.X, c.X)), clampTile(max(a.Y, c.Y)), z)

	return topLeft, bottomRight
}
