package app

import (
	"fmt"
	"io"

	"github.com/jaennil/guide_helper/backend/styles/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/styles/pkg/config"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
)

const (
	CacheMemory     = "memory"
	CacheSQLite     = "sqlite"
	CacheRedis      = "redis"
	CacheFilesystem = "filesystem"
	CacheNone       = "none"
)

// newTileCache builds the configured backend. The returned closer is nil for
// backends holding no resources; a nil cache disables caching.
func newTileCache(cfg *config.Config, l logger.Logger) (cache.TileCache, io.Closer, error) {
	switch cfg.Cache.Backend {
	case CacheMemory, "":
		l.Info("using in-memory tile cache", "max_entries", cfg.Cache.MaxEntries)
		return cache.NewBoundedMapCache(cfg.Cache.MaxEntries), nil, nil
	case CacheSQLite:
		c, err := cache.NewSQLiteCache(cfg.SQLite.Path, l)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize sqlite cache: %w", err)
		}
		l.Info("using sqlite tile cache", "path", cfg.SQLite.Path)
		return c, c, nil
	case CacheRedis:
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			TTL:       cfg.Redis.TTL,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		l.Info("using redis tile cache", "addr", cfg.Redis.Addr)
		return c, c, nil
	case CacheFilesystem:
		l.Info("using filesystem tile cache", "dir", cfg.Cache.Dir)
		return cache.NewFilesystemCache(cfg.Cache.Dir), nil, nil
	case CacheNone:
		l.Info("tile cache disabled")
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
