package provider

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache stores short-lived provider credentials. The Redis
// implementation keeps adapters stateless across instances; a cache failure
// is treated as a miss and the token is simply re-issued.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string, ttl time.Duration)
}

type RedisTokenCache struct {
	client *redis.Client
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

func (c *RedisTokenCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return value, true
}

func (c *RedisTokenCache) Set(ctx context.Context, key string, value string, ttl time.Duration) {
	_ = c.client.Set(ctx, key, value, ttl).Err()
}

type memoryToken struct {
	value     string
	expiresAt time.Time
}

type MemoryTokenCache struct {
	mu    sync.Mutex
	items map[string]memoryToken
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{items: map[string]memoryToken{}}
}

func (c *MemoryTokenCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok || time.Now().After(item.expiresAt) {
		delete(c.items, key)
		return "", false
	}
	return item.value, true
}

func (c *MemoryTokenCache) Set(_ context.Context, key string, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryToken{value: value, expiresAt: time.Now().Add(ttl)}
}
