package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces snapshot entries so they can share a Redis database
// with other consumers.
const keyPrefix = "chronicle:snapshot:"

// RedisCache backs the snapshot cache with Redis so multi-process hosts see
// each other's captures. TTL enforcement is delegated to Redis itself.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, logger: logger}
}

func (c *RedisCache) Capture(ctx context.Context, key Key, values []string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal snapshot values: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key.String(), payload, ttl).Err(); err != nil {
		return fmt.Errorf("capture snapshot: %w", err)
	}
	return nil
}

// Consume fetches and deletes in one round trip. Any failure — missing key,
// expired entry, broken connection — degrades to "no prior value" because
// the relationship delta must survive a cold cache.
func (c *RedisCache) Consume(ctx context.Context, key Key) ([]string, bool) {
	raw, err := c.client.GetDel(ctx, keyPrefix+key.String()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "snapshot consume failed, treating as empty",
				"key", key.String(),
				"error", err,
			)
		}
		return nil, false
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		c.logger.WarnContext(ctx, "snapshot payload corrupt, treating as empty",
			"key", key.String(),
			"error", err,
		)
		return nil, false
	}
	return values, true
}
