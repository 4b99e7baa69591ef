package app

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/styles/internal/provider"
	"github.com/jaennil/guide_helper/backend/styles/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/styles/internal/usecase"
	"github.com/jaennil/guide_helper/backend/styles/pkg/config"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Style: config.Style{
			URL:          provider.DefaultURL,
			Username:     "mapbox",
			ID:           "streets-v11",
			AccessToken:  "pk.test",
			TileSize:     512,
			MinimumLevel: -1,
			MaximumLevel: 18,
		},
		Retry: config.Retry{
			MaxRetries: 3,
		},
		Cache: config.Cache{
			Backend: CacheMemory,
		},
	}
}

func TestNewTileCache(t *testing.T) {
	l := logger.NewNop()

	t.Run("memory", func(t *testing.T) {
		c, closer, err := newTileCache(testConfig(), l)
		require.NoError(t, err)
		assert.IsType(t, &cache.MapCache{}, c)
		assert.Nil(t, closer)
	})

	t.Run("none", func(t *testing.T) {
		cfg := testConfig()
		cfg.Cache.Backend = CacheNone

		c, closer, err := newTileCache(cfg, l)
		require.NoError(t, err)
		assert.Nil(t, c)
		assert.Nil(t, closer)
	})

	t.Run("filesystem", func(t *testing.T) {
		cfg := testConfig()
		cfg.Cache.Backend = CacheFilesystem
		cfg.Cache.Dir = t.TempDir()

		c, _, err := newTileCache(cfg, l)
		require.NoError(t, err)
		assert.IsType(t, &cache.FilesystemCache{}, c)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := testConfig()
		cfg.Cache.Backend = CacheSQLite
		cfg.SQLite.Path = filepath.Join(t.TempDir(), "styles.db")

		c, closer, err := newTileCache(cfg, l)
		require.NoError(t, err)
		require.NotNil(t, closer)
		t.Cleanup(func() { closer.Close() })
		assert.IsType(t, &cache.SQLiteCache{}, c)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := testConfig()
		cfg.Cache.Backend = "memcached"

		_, _, err := newTileCache(cfg, l)
		assert.ErrorContains(t, err, "memcached")
	})
}

func TestProviderOptions(t *testing.T) {
	t.Setenv("STYLES_TEST_TOKEN", "pk.from-env")

	s := testConfig().Style
	s.AccessToken = "secretref:env:STYLES_TEST_TOKEN"

	opts, err := providerOptions(s)
	require.NoError(t, err)

	assert.Equal(t, "streets-v11", opts.StyleID)
	assert.Empty(t, opts.AccessToken)
	assert.Nil(t, opts.MinimumLevel)
	require.NotNil(t, opts.MaximumLevel)
	assert.Equal(t, 18, *opts.MaximumLevel)

	token, err := opts.Credentials.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pk.from-env", token)
}

func TestProviderOptions_DefaultCredentials(t *testing.T) {
	s := testConfig().Style
	s.AccessToken = ""

	opts, err := providerOptions(s)
	require.NoError(t, err)
	assert.Nil(t, opts.Credentials)
}

func TestProviderOptions_InvalidRef(t *testing.T) {
	s := testConfig().Style
	s.AccessToken = "secretref:vault:path"

	_, err := providerOptions(s)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	a, err := New(ctx, testConfig(), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(ctx) })

	ready, err := a.Tiles().WhenReady(ctx)
	require.NoError(t, err)
	assert.True(t, ready)

	style, err := a.Tiles().Style()
	require.NoError(t, err)
	assert.Contains(t, style.URLTemplate(), "access_token=pk.test")
}

type slowCache struct {
	*cache.MapCache
	stored atomic.Int64
}

func (c *slowCache) Set(k cache.TileCacheKey, v cache.TileCacheValue) error {
	time.Sleep(50 * time.Millisecond)
	c.stored.Add(1)
	return c.MapCache.Set(k, v)
}

func TestClose_FlushesStoresBeforeClosers(t *testing.T) {
	ctx := context.Background()

	p, err := provider.New(ctx, provider.Options{StyleID: "streets-v11", AccessToken: "pk.test"},
		provider.TransportFunc(func(ctx context.Context, url string) (*provider.Image, error) {
			return &provider.Image{Data: []byte("tile"), ContentType: "image/png"}, nil
		}))
	require.NoError(t, err)
	_, err = p.WhenReady(ctx)
	require.NoError(t, err)

	c := &slowCache{MapCache: cache.NewMapCache()}
	var storedAtClose int64 = -1
	a := &App{
		logger:   logger.NewNop(),
		provider: p,
		tiles:    usecase.NewTileUseCase(p, c, logger.NewNop()),
		closers: []func(context.Context) error{
			func(context.Context) error {
				storedAtClose = c.stored.Load()
				return nil
			},
		},
	}

	for x := 0; x < 2; x++ {
		_, err := a.Tiles().GetTile(ctx, 1, x, 0)
		require.NoError(t, err)
	}

	require.NoError(t, a.Close(ctx))
	assert.Equal(t, int64(2), storedAtClose)
}

func TestNew_MissingStyleID(t *testing.T) {
	cfg := testConfig()
	cfg.Style.ID = ""

	_, err := New(context.Background(), cfg, logger.NewNop())
	assert.ErrorIs(t, err, provider.ErrMissingStyleID)
}
