package cache

import (
	"container/list"
	"sync"
)

// MapCache keeps tiles in memory. With a positive limit the oldest stored
// tile is evicted once the limit is exceeded.
type MapCache struct {
	mu    sync.Mutex
	limit int
	order *list.List
	items map[TileCacheKey]*list.Element
}

type mapEntry struct {
	key   TileCacheKey
	value TileCacheValue
}

// NewMapCache returns an unbounded in-memory cache.
func NewMapCache() *MapCache {
	return NewBoundedMapCache(0)
}

func NewBoundedMapCache(limit int) *MapCache {
	return &MapCache{
		limit: limit,
		order: list.New(),
		items: make(map[TileCacheKey]*list.Element),
	}
}

var _ TileCache = (*MapCache)(nil)

func (c *MapCache) Get(k TileCacheKey) (TileCacheValue, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, exists := c.items[k]
	if !exists {
		return nil, false, nil
	}
	return el.Value.(*mapEntry).value, true, nil
}

func (c *MapCache) Set(k TileCacheKey, v TileCacheValue) error {
	// callers may reuse their buffer
	v = append(TileCacheValue(nil), v...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, exists := c.items[k]; exists {
		el.Value.(*mapEntry).value = v
		c.order.MoveToBack(el)
		return nil
	}

	c.items[k] = c.order.PushBack(&mapEntry{key: k, value: v})

	for c.limit > 0 && c.order.Len() > c.limit {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*mapEntry).key)
	}

	return nil
}

func (c *MapCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
