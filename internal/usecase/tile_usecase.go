package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/jaennil/guide_helper/backend/styles/internal/provider"
	"github.com/jaennil/guide_helper/backend/styles/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
	"github.com/jaennil/guide_helper/backend/styles/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	SourceCache    = "cache"
	SourceUpstream = "upstream"
)

type Tile struct {
	Image  *provider.Image
	Source string
}

type TileUseCase struct {
	provider *provider.Provider
	cache    cache.TileCache
	logger   logger.Logger

	// concurrent misses of one tile share a single upstream request
	flights singleflight.Group
	stores  sync.WaitGroup
}

// NewTileUseCase serves tiles through p. A nil tileCache disables caching.
func NewTileUseCase(p *provider.Provider, tileCache cache.TileCache, l logger.Logger) *TileUseCase {
	return &TileUseCase{
		provider: p,
		cache:    tileCache,
		logger:   l,
	}
}

func (uc *TileUseCase) Ready() bool {
	return uc.provider.Ready()
}

func (uc *TileUseCase) WhenReady(ctx context.Context) (bool, error) {
	return uc.provider.WhenReady(ctx)
}

func (uc *TileUseCase) Style() (*provider.TileSourceConfig, error) {
	return uc.provider.Config()
}

func (uc *TileUseCase) GetTile(ctx context.Context, z, x, y int) (*Tile, error) {
	cfg, err := uc.provider.Config()
	if err != nil {
		return nil, err
	}
	if !cfg.HasLevel(z) {
		return nil, provider.ErrLevelOutOfRange
	}
	if err := checkCoordinates(z, x, y); err != nil {
		return nil, err
	}

	key := cache.TileCacheKey{Style: StyleKey(cfg), Z: z, X: x, Y: y}

	if data, ok := uc.lookup(key); ok {
		return &Tile{
			Image:  &provider.Image{Data: data, ContentType: http.DetectContentType(data)},
			Source: SourceCache,
		}, nil
	}

	img, err := uc.fetchShared(ctx, key)
	if err != nil {
		return nil, err
	}

	return &Tile{Image: img, Source: SourceUpstream}, nil
}

// Flush waits until every cache store started by GetTile has finished, or ctx is done.
func (uc *TileUseCase) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		uc.stores.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (uc *TileUseCase) fetchShared(ctx context.Context, key cache.TileCacheKey) (*provider.Image, error) {
	ch := uc.flights.DoChan(key.String(), func() (any, error) {
		return uc.fetch(ctx, key)
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(*provider.Image), nil
		}
		// the caller that started the flight gave up; this one has not
		if res.Shared && ctx.Err() == nil &&
			(errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)) {
			return uc.fetch(ctx, key)
		}
		return nil, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (uc *TileUseCase) fetch(ctx context.Context, key cache.TileCacheKey) (*provider.Image, error) {
	req, err := uc.provider.RequestImage(ctx, key.Z, key.X, key.Y)
	if err != nil {
		return nil, err
	}
	defer req.Release()

	img, err := req.Wait(ctx)
	if err != nil {
		return nil, err
	}

	uc.logger.Debug("fetched tile from upstream", "tile", req.ID(), "key", key.String(), "size", len(img.Data), "attempts", req.Attempts())

	if uc.cache != nil {
		uc.stores.Add(1)
		go func() {
			defer uc.stores.Done()
			uc.store(key, img.Data)
		}()
	}

	return img, nil
}

func (uc *TileUseCase) lookup(key cache.TileCacheKey) (cache.TileCacheValue, bool) {
	if uc.cache == nil {
		return nil, false
	}

	data, exists, err := uc.cache.Get(key)
	if err != nil {
		uc.logger.Warn("failed to check cache, will fetch from upstream", "key", key.String(), "error", err)
		return nil, false
	}
	if !exists || len(data) == 0 {
		metrics.CacheMisses.Inc()
		return nil, false
	}

	metrics.CacheHits.Inc()
	return data, true
}

func (uc *TileUseCase) store(key cache.TileCacheKey, data []byte) {
	if err := uc.cache.Set(key, data); err != nil {
		uc.logger.Warn("failed to store tile in cache", "key", key.String(), "error", err)
		return
	}
	metrics.CacheStores.Inc()
}

// StyleKey names the cached variant of a style: owner, style, size and density.
func StyleKey(cfg *provider.TileSourceConfig) string {
	key := cfg.Username() + "/" + cfg.StyleID() + "/" + strconv.Itoa(cfg.TileSize())
	if cfg.ScaleFactor() {
		key += "@2x"
	}
	return key
}

var ErrInvalidCoordinates = errors.New("tile coordinates are outside the tiling scheme")

func checkCoordinates(z, x, y int) error {
	if z < 0 || z > 30 || x < 0 || y < 0 {
		return ErrInvalidCoordinates
	}
	n := 1 << uint(z)
	if x >= n || y >= n {
		return fmt.Errorf("%w: %d/%d/%d", ErrInvalidCoordinates, z, x, y)
	}
	return nil
}
