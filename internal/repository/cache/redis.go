package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
	"github.com/jaennil/guide_helper/backend/styles/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisTTL       = 24 * time.Hour
	defaultRedisKeyPrefix = "styles:tile:"
	redisTimeout          = 5 * time.Second
)

// RedisCache stores tiles as plain string values that expire after TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger logger.Logger
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

func NewRedisCache(cfg RedisConfig, l logger.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	c := &RedisCache{
		client: client,
		ttl:    cfg.TTL,
		prefix: cfg.KeyPrefix,
		logger: l,
	}
	if c.ttl <= 0 {
		c.ttl = defaultRedisTTL
	}
	if c.prefix == "" {
		c.prefix = defaultRedisKeyPrefix
	}

	l.Info("redis cache initialized", "addr", cfg.Addr, "db", cfg.DB, "ttl", c.ttl)

	return c, nil
}

var _ TileCache = (*RedisCache)(nil)

func (c *RedisCache) keyFor(k TileCacheKey) string {
	return c.prefix + k.String()
}

func (c *RedisCache) Get(k TileCacheKey) (TileCacheValue, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	start := time.Now()
	data, err := c.client.Get(ctx, c.keyFor(k)).Bytes()
	metrics.RedisOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		metrics.RedisErrors.WithLabelValues("get").Inc()
		c.logger.Error("redis cache get failed", "key", k.String(), "error", err)
		return nil, false, fmt.Errorf("failed to get tile %s from redis: %w", k, err)
	}

	return data, true, nil
}

func (c *RedisCache) Set(k TileCacheKey, v TileCacheValue) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	start := time.Now()
	err := c.client.Set(ctx, c.keyFor(k), []byte(v), c.ttl).Err()
	metrics.RedisOperationDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RedisErrors.WithLabelValues("set").Inc()
		c.logger.Error("redis cache set failed", "key", k.String(), "error", err)
		return fmt.Errorf("failed to store tile %s in redis: %w", k, err)
	}

	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
