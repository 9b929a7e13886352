package media

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores GIF lookups by key. Implementations never evict on their own.
type Cache interface {
	Get(ctx context.Context, key string) (GifResult, bool)
	Set(ctx context.Context, key string, res GifResult)
}

// MemoryCache keeps every lookup for the life of the process.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]GifResult
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]GifResult)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (GifResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.entries[key]
	return res, ok
}

func (c *MemoryCache) Set(_ context.Context, key string, res GifResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = res
}

// Len is the number of cached queries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

const gifKeyPrefix = "gif:"

// RedisCache shares lookups between instances. A zero TTL keeps keys forever.
// Redis errors read as misses and failed writes are dropped.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (GifResult, bool) {
	val, err := c.client.Get(ctx, gifKeyPrefix+key).Bytes()
	if err != nil {
		return GifResult{}, false
	}
	var res GifResult
	if err := json.Unmarshal(val, &res); err != nil {
		return GifResult{}, false
	}
	return res, true
}

func (c *RedisCache) Set(ctx context.Context, key string, res GifResult) {
	val, err := json.Marshal(res)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, gifKeyPrefix+key, val, c.ttl).Err()
}
