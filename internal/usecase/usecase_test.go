package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/styles/internal/provider"
	"github.com/jaennil/guide_helper/backend/styles/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

type countingTransport struct {
	mu       sync.Mutex
	failures int
	urls     []string
}

func (c *countingTransport) Issue(_ context.Context, url string) (*provider.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls = append(c.urls, url)
	if len(c.urls) <= c.failures {
		return nil, errors.New("upstream down")
	}
	return &provider.Image{Data: pngHeader, ContentType: "image/png"}, nil
}

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.urls)
}

func newProvider(t *testing.T, opts provider.Options, tr provider.Transport, options ...provider.Option) *provider.Provider {
	t.Helper()
	if opts.StyleID == "" {
		opts.StyleID = "streets-v11"
	}
	if opts.AccessToken == "" {
		opts.AccessToken = "tok"
	}

	p, err := provider.New(context.Background(), opts, tr, options...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = p.WhenReady(ctx)
	require.NoError(t, err)
	return p
}

func TestTileUseCase_GetTileCachesUpstream(t *testing.T) {
	tr := &countingTransport{}
	c := cache.NewMapCache()
	uc := NewTileUseCase(newProvider(t, provider.Options{}, tr), c, logger.NewNop())

	tile, err := uc.GetTile(context.Background(), 2, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, SourceUpstream, tile.Source)
	assert.Equal(t, pngHeader, tile.Image.Data)

	key := cache.TileCacheKey{Style: "mapbox/streets-v11/512", Z: 2, X: 1, Y: 3}
	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(key)
		return ok
	}, time.Second, 5*time.Millisecond)

	tile, err = uc.GetTile(context.Background(), 2, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, tile.Source)
	assert.Equal(t, "image/png", tile.Image.ContentType)
	assert.Equal(t, 1, tr.count())
}

func TestTileUseCase_WithoutCache(t *testing.T) {
	tr := &countingTransport{}
	uc := NewTileUseCase(newProvider(t, provider.Options{}, tr), nil, logger.NewNop())

	for i := 0; i < 2; i++ {
		tile, err := uc.GetTile(context.Background(), 0, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, SourceUpstream, tile.Source)
	}
	assert.Equal(t, 2, tr.count())
}

func TestTileUseCase_RetriesThroughPolicy(t *testing.T) {
	tr := &countingTransport{failures: 2}
	p := newProvider(t, provider.Options{}, tr,
		provider.WithRetryObserver(provider.BackoffPolicy{MaxRetries: 3}.Observe),
	)
	uc := NewTileUseCase(p, nil, logger.NewNop())

	tile, err := uc.GetTile(context.Background(), 1, 0, 1)
	require.NoError(t, err)
	assert.NotNil(t, tile.Image)
	assert.Equal(t, 3, tr.count())
}

func TestTileUseCase_Rejections(t *testing.T) {
	tr := &countingTransport{}
	p := newProvider(t, provider.Options{MaximumLevel: intPtr(4)}, tr)
	uc := NewTileUseCase(p, cache.NewMapCache(), logger.NewNop())

	_, err := uc.GetTile(context.Background(), 5, 0, 0)
	assert.ErrorIs(t, err, provider.ErrLevelOutOfRange)

	_, err = uc.GetTile(context.Background(), 2, 4, 0)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	_, err = uc.GetTile(context.Background(), 2, -1, 0)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	assert.Zero(t, tr.count())
}

func TestTileUseCase_NotReady(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	p, err := provider.New(context.Background(), provider.Options{
		StyleID: "streets-v11",
		Credentials: credentialFunc(func(ctx context.Context) (string, error) {
			<-block
			return "tok", nil
		}),
	}, &countingTransport{})
	require.NoError(t, err)

	uc := NewTileUseCase(p, nil, logger.NewNop())
	assert.False(t, uc.Ready())

	_, err = uc.GetTile(context.Background(), 0, 0, 0)
	assert.ErrorIs(t, err, provider.ErrNotReady)
}

func TestStyleKey(t *testing.T) {
	p := newProvider(t, provider.Options{Username: "me", StyleID: "dark", TileSize: 256, ScaleFactor: true}, &countingTransport{})
	cfg, err := p.Config()
	require.NoError(t, err)

	assert.Equal(t, "me/dark/256@2x", StyleKey(cfg))
}

func TestSeedUseCase_Seed(t *testing.T) {
	tr := &countingTransport{}
	tiles := NewTileUseCase(newProvider(t, provider.Options{}, tr), nil, logger.NewNop())
	uc := NewSeedUseCase(tiles, logger.NewNop())

	report, err := uc.Seed(context.Background(), SeedRequest{
		Bound:       provider.WebMercatorBound,
		MinZoom:     0,
		MaxZoom:     2,
		Concurrency: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1+4+16), report.Total)
	assert.Equal(t, int64(21), report.Fetched)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 21, tr.count())
}

func TestSeedUseCase_CountsCachedAndOutOfRange(t *testing.T) {
	tr := &countingTransport{}
	c := cache.NewMapCache()
	require.NoError(t, c.Set(cache.TileCacheKey{Style: "mapbox/streets-v11/512", Z: 0, X: 0, Y: 0}, pngHeader))

	p := newProvider(t, provider.Options{MaximumLevel: intPtr(0)}, tr)
	uc := NewSeedUseCase(NewTileUseCase(p, c, logger.NewNop()), logger.NewNop())

	report, err := uc.Seed(context.Background(), SeedRequest{Bound: provider.WebMercatorBound, MinZoom: 0, MaxZoom: 1})
	require.NoError(t, err)

	assert.Equal(t, int64(5), report.Total)
	assert.Equal(t, int64(1), report.Cached)
	assert.Equal(t, int64(4), report.OutOfRange)
	assert.Zero(t, tr.count())
}

func TestSeedUseCase_CountsFailures(t *testing.T) {
	tr := &countingTransport{failures: 1000}
	uc := NewSeedUseCase(NewTileUseCase(newProvider(t, provider.Options{}, tr), nil, logger.NewNop()), logger.NewNop())

	report, err := uc.Seed(context.Background(), SeedRequest{Bound: provider.WebMercatorBound, MinZoom: 1, MaxZoom: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(4), report.Failed)
}

func TestSeedUseCase_InvalidZoomRange(t *testing.T) {
	uc := NewSeedUseCase(NewTileUseCase(newProvider(t, provider.Options{}, &countingTransport{}), nil, logger.NewNop()), logger.NewNop())

	_, err := uc.Seed(context.Background(), SeedRequest{MinZoom: 3, MaxZoom: 2})
	assert.Error(t, err)
}

func TestTileRange(t *testing.T) {
	minTile, maxTile := TileRange(provider.WebMercatorBound, 2)
	assert.Equal(t, uint32(0), minTile.X)
	assert.Equal(t, uint32(0), minTile.Y)
	assert.Equal(t, uint32(3), maxTile.X)
	assert.Equal(t, uint32(3), maxTile.Y)

	// north-east quadrant only
	ne := orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{179, 80}}
	minTile, maxTile = TileRange(ne, 1)
	assert.Equal(t, uint32(1), minTile.X)
	assert.Equal(t, uint32(0), minTile.Y)
	assert.Equal(t, uint32(1), maxTile.X)
	assert.Equal(t, uint32(0), maxTile.Y)
}

type credentialFunc func(ctx context.Context) (string, error)

func (f credentialFunc) Resolve(ctx context.Context) (string, error) {
	return f(ctx)
}

// slowCache stands in for a sqlite or redis backend whose writes take a while.
type slowCache struct {
	*cache.MapCache
	delay  time.Duration
	stored atomic.Int64
}

func (c *slowCache) Set(k cache.TileCacheKey, v cache.TileCacheValue) error {
	time.Sleep(c.delay)
	c.stored.Add(1)
	return c.MapCache.Set(k, v)
}

func TestSeedUseCase_WaitsForCacheStores(t *testing.T) {
	c := &slowCache{MapCache: cache.NewMapCache(), delay: 20 * time.Millisecond}
	tiles := NewTileUseCase(newProvider(t, provider.Options{}, &countingTransport{}), c, logger.NewNop())
	uc := NewSeedUseCase(tiles, logger.NewNop())

	report, err := uc.Seed(context.Background(), SeedRequest{
		Bound:       provider.WebMercatorBound,
		MinZoom:     0,
		MaxZoom:     2,
		Concurrency: 4,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(21), report.Fetched)
	assert.Equal(t, report.Fetched, c.stored.Load())
	assert.Equal(t, 21, c.Len())
}

func TestTileUseCase_FlushHonoursContext(t *testing.T) {
	c := &slowCache{MapCache: cache.NewMapCache(), delay: time.Second}
	uc := NewTileUseCase(newProvider(t, provider.Options{}, &countingTransport{}), c, logger.NewNop())

	_, err := uc.GetTile(context.Background(), 0, 0, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, uc.Flush(ctx), context.DeadlineExceeded)

	require.NoError(t, uc.Flush(context.Background()))
	assert.Equal(t, int64(1), c.stored.Load())
}

// barrierCache holds every Get until n callers arrived, so they all miss together.
type barrierCache struct {
	*cache.MapCache
	arrived sync.WaitGroup
}

func (c *barrierCache) Get(k cache.TileCacheKey) (cache.TileCacheValue, bool, error) {
	c.arrived.Done()
	c.arrived.Wait()
	return c.MapCache.Get(k)
}

func TestTileUseCase_ConcurrentMissesShareUpstream(t *testing.T) {
	const callers = 8

	release := make(chan struct{})
	var calls atomic.Int64
	tr := provider.TransportFunc(func(ctx context.Context, url string) (*provider.Image, error) {
		calls.Add(1)
		<-release
		return &provider.Image{Data: pngHeader, ContentType: "image/png"}, nil
	})

	c := &barrierCache{MapCache: cache.NewMapCache()}
	c.arrived.Add(callers)
	uc := NewTileUseCase(newProvider(t, provider.Options{}, tr), c, logger.NewNop())

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tile, err := uc.GetTile(context.Background(), 3, 2, 1)
			if err == nil && tile.Source != SourceUpstream {
				err = errors.New("unexpected source " + tile.Source)
			}
			errs <- err
		}()
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	// give the remaining callers time to join the flight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), calls.Load())
	require.NoError(t, uc.Flush(context.Background()))
}

func TestTileUseCase_FollowerOutlivesCancelledLeader(t *testing.T) {
	var calls atomic.Int64
	started := make(chan struct{}, 2)
	tr := provider.TransportFunc(func(ctx context.Context, url string) (*provider.Image, error) {
		if calls.Add(1) == 1 {
			started <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &provider.Image{Data: pngHeader, ContentType: "image/png"}, nil
	})
	uc := NewTileUseCase(newProvider(t, provider.Options{}, tr), nil, logger.NewNop())

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := uc.GetTile(leaderCtx, 1, 1, 1)
		leaderErr <- err
	}()
	<-started

	followerTile := make(chan *Tile, 1)
	go func() {
		tile, _ := uc.GetTile(context.Background(), 1, 1, 1)
		followerTile <- tile
	}()
	time.Sleep(20 * time.Millisecond)
	cancelLeader()

	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	select {
	case tile := <-followerTile:
		require.NotNil(t, tile)
		assert.Equal(t, pngHeader, tile.Image.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("follower never got its tile")
	}
}

func intPtr(v int) *int {
	return &v
}
