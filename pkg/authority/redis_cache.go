package authority

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCacheTTL = 5 * time.Minute

// RedisCache shares the version listing across processes. Entries are
// JSON-encoded and expire after a short TTL so a missed invalidation
// from another writer heals on its own.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a cache backed by the Redis instance at addr.
func NewRedisCache(addr, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, prefix: "framestore:versions:"}
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "framestore:versions:"}
}

func (c *RedisCache) Get(ctx context.Context, name string) ([]Version, bool) {
	data, err := c.client.Get(ctx, c.prefix+name).Bytes()
	if err != nil {
		return nil, false
	}
	var versions []Version
	if err := json.Unmarshal(data, &versions); err != nil {
		return nil, false
	}
	return versions, true
}

func (c *RedisCache) Set(ctx context.Context, name string, versions []Version) {
	data, err := json.Marshal(versions)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.prefix+name, data, redisCacheTTL).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, name string) {
	_ = c.client.Del(ctx, c.prefix+name).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
