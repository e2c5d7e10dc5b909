package data

import (
	"context"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryMaxClients = 10000

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryRateLimitRepo keeps fixed-window counters in a bounded LRU,
// so a flood of distinct client IPs cannot grow memory without limit.
type MemoryRateLimitRepo struct {
	mu      sync.Mutex
	windows *lru.Cache[string, *memoryWindow]
	now     func() time.Time
	logger  *log.Helper
}

// NewMemoryRateLimitRepo creates the in-memory store.
func NewMemoryRateLimitRepo(maxClients int, logger log.Logger) *MemoryRateLimitRepo {
	if maxClients <= 0 {
		maxClients = defaultMemoryMaxClients
	}
	// size > 0 never fails
	windows, _ := lru.New[string, *memoryWindow](maxClients)
	return &MemoryRateLimitRepo{
		windows: windows,
		now:     time.Now,
		logger:  log.NewHelper(logger),
	}
}

// Increment increments the counter for key in the current window.
func (m *MemoryRateLimitRepo) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cacheKey := getRateLimitKey(key, window)

	w, ok := m.windows.Get(cacheKey)
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		m.windows.Add(cacheKey, w)
	}
	w.count++
	return w.count, w.resetAt.Sub(now), nil
}

// Len returns the number of tracked windows.
func (m *MemoryRateLimitRepo) Len() int {
	return m.windows.Len()
}
