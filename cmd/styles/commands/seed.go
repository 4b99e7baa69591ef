package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jaennil/guide_helper/backend/styles/internal/usecase"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
)

func newSeedCommand() *cobra.Command {
	var (
		bbox        string
		minZoom     int
		maxZoom     int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fetch every tile covering a bounding box into the cache",
		Example: `  # Seed Moscow up to level 12 into sqlite
  CACHE_BACKEND=sqlite styles seed --bbox 37.3,55.5,37.9,56.0 --max-zoom 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bound, err := parseBBox(bbox)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			a, l, err := setup(ctx)
			if err != nil {
				return err
			}
			defer l.Sync()
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				if err := a.Close(closeCtx); err != nil {
					l.Error("failed to close application", "error", err)
				}
			}()

			report, err := a.Seed(ctx, usecase.SeedRequest{
				Bound:       bound,
				MinZoom:     minZoom,
				MaxZoom:     maxZoom,
				Concurrency: concurrency,
			})

			fmt.Fprintf(cmd.OutOrStdout(), "total=%d fetched=%d cached=%d failed=%d out_of_range=%d\n",
				report.Total, report.Fetched, report.Cached, report.Failed, report.OutOfRange)

			if err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d tiles failed", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bbox, "bbox", "-180,-85.0511,180,85.0511", "bounding box as minLon,minLat,maxLon,maxLat")
	cmd.Flags().IntVar(&minZoom, "min-zoom", 0, "first level to seed")
	cmd.Flags().IntVar(&maxZoom, "max-zoom", 5, "last level to seed")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "tiles fetched in parallel")

	return cmd
}

func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox %q: want minLon,minLat,maxLon,maxLat", s)
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}

	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox %q: minimum exceeds maximum", s)
	}
	if v[0] < -180 || v[2] > 180 || v[1] < -90 || v[3] > 90 {
		return orb.Bound{}, fmt.Errorf("bbox %q: outside of lon/lat range", s)
	}

	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
