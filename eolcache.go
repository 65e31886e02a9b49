package datastoreMatching

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// CycleCache stores raw endoflife.date cycle lists keyed by product slug.
type CycleCache interface {
	Get(ctx context.Context, slug string) ([]byte, bool)
	Set(ctx context.Context, slug string, payload []byte)
}

type redisCycleCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCycleCache caches cycle lists in Redis under eol:cycles:{slug}.
// Cache failures are logged and treated as misses so a Redis outage never
// blocks a lookup.
func NewRedisCycleCache(client *redis.Client, ttl time.Duration) CycleCache {
	return &redisCycleCache{client: client, ttl: ttl}
}

func cycleCacheKey(slug string) string {
	return fmt.Sprintf("eol:cycles:%s", slug)
}

func (c *redisCycleCache) Get(ctx context.Context, slug string) ([]byte, bool) {
	data, err := c.client.Get(ctx, cycleCacheKey(slug)).Result()
	if err == redis.Nil || data == "" {
		return nil, false
	}
	if err != nil {
		log.Printf("Error reading cycle cache for %s: %v", slug, err)
		return nil, false
	}
	return []byte(data), true
}

func (c *redisCycleCache) Set(ctx context.Context, slug string, payload []byte) {
	if err := c.client.Set(ctx, cycleCacheKey(slug), payload, c.ttl).Err(); err != nil {
		log.Printf("Error caching cycles for %s: %v", slug, err)
	}
}
