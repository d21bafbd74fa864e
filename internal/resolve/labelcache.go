package resolve

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// labelMapCacheKey is the single Redis key the whole label-artist
// table is cached under, the same "one key, one JSON blob, TTL-bound"
// shape the teacher's server/cache package uses for its cached-query
// map, generalized from memcache to Redis.
const labelMapCacheKey = "setgraph:label_map:v1"

// RedisLabelMapCache wraps a LabelMapStore with a shared Redis cache,
// so every cmd/setgraph process (each builds its own in-memory
// Resolver and would otherwise re-scan the full label-artist table on
// every invocation) can share one freshly-loaded copy instead of
// hitting Postgres every time.
type RedisLabelMapCache struct {
	client *redis.Client
	next   LabelMapStore
	ttl    time.Duration
}

// NewRedisLabelMapCache wraps next with a Redis-backed cache using
// client, expiring cached rows after ttl.
func NewRedisLabelMapCache(client *redis.Client, next LabelMapStore, ttl time.Duration) *RedisLabelMapCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisLabelMapCache{client: client, next: next, ttl: ttl}
}

// LoadLabelArtistCounts serves from Redis on a cache hit; on a miss
// (including a Redis outage, which degrades to always-miss rather than
// failing resolution) it loads from next and writes the result back.
func (c *RedisLabelMapCache) LoadLabelArtistCounts(ctx context.Context) ([]LabelArtistCount, error) {
	if rows, ok := c.get(ctx); ok {
		return rows, nil
	}
	rows, err := c.next.LoadLabelArtistCounts(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, rows)
	return rows, nil
}

func (c *RedisLabelMapCache) get(ctx context.Context) ([]LabelArtistCount, bool) {
	raw, err := c.client.Get(ctx, labelMapCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	var rows []LabelArtistCount
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

func (c *RedisLabelMapCache) set(ctx context.Context, rows []LabelArtistCount) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return
	}
	c.client.Set(ctx, labelMapCacheKey, raw, c.ttl)
}

// Invalidate drops the cached label map, for callers that feed tier-2
// resolutions back into the label map (spec.md §4.10's feedback loop)
// and need the next load to see them immediately rather than waiting
// out the TTL.
func (c *RedisLabelMapCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, labelMapCacheKey).Err()
}
