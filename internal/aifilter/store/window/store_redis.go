package window

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shahin/internal/aifilter/models"
)

// windowKeyPrefix namespaces filter windows in Redis.
const windowKeyPrefix = "aifilter:window:"

// Redis implements WindowStore on a shared Redis instance so horizontally
// scaled nodes count against one window. INCR plus a TTL set on the first
// request gives the same fixed-window semantics as the in-memory store.
type Redis struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed window store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	redisKey := windowKeyPrefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("increment window: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return nil, fmt.Errorf("set window expiry: %w", err)
		}
	}

	if count > int64(limit) {
		ttl, err := s.client.TTL(ctx, redisKey).Result()
		if err != nil || ttl < 0 {
			ttl = window
		}
		return &models.RateLimitResult{
			Allowed:    false,
			Limit:      limit,
			RetryAfter: ttl,
		}, nil
	}

	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - int(count),
	}, nil
}
