package data

import (
	"context"
	"fmt"
	"time"

	"CivicGate/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// RateLimitStore counts requests in fixed windows.
// Increment returns the count for the current window of key and the time
// until that window resets.
type RateLimitStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// NewRateLimitStore picks the Redis store when configured and reachable,
// the in-process LRU store otherwise.
func NewRateLimitStore(c *conf.RateLimit, rdb *redis.Client, logger log.Logger) RateLimitStore {
	helper := log.NewHelper(logger)
	maxClients := 0
	if c != nil {
		maxClients = int(c.MemoryMaxClients)
	}
	if c != nil && c.Store == "redis" {
		if rdb != nil {
			helper.Info("rate limiter using redis store")
			return NewRateLimitRepo(rdb, logger)
		}
		helper.Warn("rate_limit.store=redis but redis is unavailable, using in-memory store")
	}
	return NewMemoryRateLimitRepo(maxClients, logger)
}

// RateLimitRepo is the Redis fixed-window counter store.
type RateLimitRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewRateLimitRepo creates a new rate limit repository.
func NewRateLimitRepo(rdb *redis.Client, logger log.Logger) *RateLimitRepo {
	return &RateLimitRepo{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// Increment increments the counter for key.
// Uses Redis INCR with expiration set on first increment.
func (r *RateLimitRepo) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if r.rdb == nil {
		return 0, 0, fmt.Errorf("redis client is nil")
	}

	redisKey := getRateLimitKey(key, window)

	count, err := r.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	if count == 1 {
		if err := r.rdb.Expire(ctx, redisKey, window).Err(); err != nil {
			r.logger.Warnf("Failed to set rate counter expiration for %s: %v", redisKey, err)
		}
		return count, window, nil
	}

	ttl, err := r.rdb.PTTL(ctx, redisKey).Result()
	if err != nil {
		return count, window, nil
	}
	if ttl < 0 {
		// 之前的 Expire 丢失，补设过期时间，避免计数器永不过期
		if err := r.rdb.Expire(ctx, redisKey, window).Err(); err != nil {
			r.logger.Warnf("Failed to repair rate counter expiration for %s: %v", redisKey, err)
		}
		ttl = window
	}
	return count, ttl, nil
}

// getRateLimitKey generates a Redis key for rate limiting.
// Format: rate:{key}:{window}
// Example: rate:10.0.0.1:1m0s
func getRateLimitKey(key string, window time.Duration) string {
	return fmt.Sprintf("rate:%s:%s", key, window)
}
