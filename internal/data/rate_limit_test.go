package data

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"CivicGate/internal/conf"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return rdb, mr
}

func TestRateLimitRepo_FirstIncrementSetsTTL(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	defer rdb.Close()

	repo := NewRateLimitRepo(rdb, log.NewStdLogger(os.Stdout))
	ctx := context.Background()

	count, reset, err := repo.Increment(ctx, "10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, reset)

	ttl := mr.TTL(getRateLimitKey("10.0.0.1", time.Minute))
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRateLimitRepo_SubsequentIncrements(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	defer rdb.Close()

	repo := NewRateLimitRepo(rdb, log.NewStdLogger(os.Stdout))
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		count, _, err := repo.Increment(ctx, "10.0.0.1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	// Windows are independent per key and per window length.
	count, _, err := repo.Increment(ctx, "10.0.0.1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	mr.FastForward(61 * time.Second)
	count, _, err = repo.Increment(ctx, "10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "window expired")
}

func TestRateLimitRepo_RepairsMissingTTL(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	defer rdb.Close()

	key := getRateLimitKey("10.0.0.2", time.Minute)
	require.NoError(t, mr.Set(key, "4"))

	repo := NewRateLimitRepo(rdb, log.NewStdLogger(os.Stdout))
	count, reset, err := repo.Increment(context.Background(), "10.0.0.2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.Equal(t, time.Minute, reset)
	assert.Greater(t, mr.TTL(key), time.Duration(0))
}

func TestRateLimitRepo_NilClient(t *testing.T) {
	repo := NewRateLimitRepo(nil, log.NewStdLogger(os.Stdout))
	_, _, err := repo.Increment(context.Background(), "x", time.Minute)
	assert.Error(t, err)
}

func TestMemoryRateLimitRepo_Window(t *testing.T) {
	repo := NewMemoryRateLimitRepo(10, log.NewStdLogger(os.Stdout))
	clock := newFakeClock()
	repo.now = clock.Now
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		count, reset, err := repo.Increment(ctx, "ip", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.Equal(t, time.Minute, reset)
	}

	clock.Advance(45 * time.Second)
	count, reset, err := repo.Increment(ctx, "ip", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.Equal(t, 15*time.Second, reset)

	clock.Advance(15 * time.Second)
	count, _, err = repo.Increment(ctx, "ip", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "new window")
}

func TestMemoryRateLimitRepo_Bounded(t *testing.T) {
	repo := NewMemoryRateLimitRepo(5, log.NewStdLogger(os.Stdout))
	for i := 0; i < 20; i++ {
		_, _, err := repo.Increment(context.Background(), fmt.Sprintf("10.0.0.%d", i), time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, repo.Len())
}

func TestNewRateLimitStore(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	_, ok := NewRateLimitStore(&conf.RateLimit{Store: "redis"}, rdb, logger).(*RateLimitRepo)
	assert.True(t, ok)

	_, ok = NewRateLimitStore(&conf.RateLimit{Store: "redis"}, nil, logger).(*MemoryRateLimitRepo)
	assert.True(t, ok, "falls back when redis is down")

	_, ok = NewRateLimitStore(&conf.RateLimit{Store: "memory"}, rdb, logger).(*MemoryRateLimitRepo)
	assert.True(t, ok)
}
