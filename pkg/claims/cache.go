package claims

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/userplane/userplane/pkg/logx"
)

// Cache stores the enrichment attributes looked up at token time. Token
// issuance is on the hot path of every login, so a miss or a cache failure
// must never surface; implementations log and move on.
type Cache interface {
	Get(ctx context.Context, key string) (map[string]string, bool)
	Set(ctx context.Context, key string, values map[string]string)
}

const cacheKeyPrefix = "claims:"

// RedisCache caches enrichment attributes in Redis with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache on the given client. A zero ttl defaults to
// five minutes, long enough to absorb token refresh bursts while keeping
// profile edits reasonably fresh.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get fetches cached enrichment values. Any failure is treated as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (map[string]string, bool) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logx.WithError(err).Debug("claims cache read failed")
		}
		return nil, false
	}

	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		logx.WithError(err).Debug("claims cache entry corrupt")
		return nil, false
	}
	return values, true
}

// Set stores enrichment values, best effort.
func (c *RedisCache) Set(ctx context.Context, key string, values map[string]string) {
	data, err := json.Marshal(values)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+key, data, c.ttl).Err(); err != nil {
		logx.WithError(err).Debug("claims cache write failed")
	}
}
