package biz

import (
	"context"
	"fmt"
	"math"
	"time"

	"CivicGate/internal/conf"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultPerIPRPM       = 100
	defaultBurstPerSecond = 10

	burstWindow  = time.Second
	minuteWindow = time.Minute

	// Rate limit reasons, also the error reasons on the wire.
	ReasonBurstLimit = "BURST_LIMIT"
	ReasonRateLimit  = "RATE_LIMIT"
)

// RateLimitRepo counts hits per key in fixed windows.
// Implementation is in data layer (Redis or in-memory LRU).
type RateLimitRepo interface {
	// Increment adds one hit and returns the window count and the time left in it.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimiterUseCase implements the per-client front-door limits:
// a per-second burst limit and a per-minute limit.
type RateLimiterUseCase struct {
	repo    RateLimitRepo
	rpm     int64
	burst   int64
	metrics Metrics
	logger  *log.Helper
}

// NewRateLimiterUseCase creates a new rate limiter use case.
func NewRateLimiterUseCase(c *conf.RateLimit, repo RateLimitRepo, metrics Metrics, logger log.Logger) *RateLimiterUseCase {
	rpm, burst := int64(defaultPerIPRPM), int64(defaultBurstPerSecond)
	if c != nil {
		if c.PerIpRpm > 0 {
			rpm = int64(c.PerIpRpm)
		}
		if c.BurstPerSecond > 0 {
			burst = int64(c.BurstPerSecond)
		}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &RateLimiterUseCase{
		repo:    repo,
		rpm:     rpm,
		burst:   burst,
		metrics: metrics,
		logger:  log.NewHelper(logger),
	}
}

// newRateLimitExceededError creates a 429 error carrying retry information.
func newRateLimitExceededError(reason, message, detail string, retryAfter int64) error {
	return errors.New(429, reason, message).WithMetadata(map[string]string{
		"retry_after": fmt.Sprintf("%d", retryAfter),
		"detail":      detail,
	})
}

// Check applies the burst limit, then the minute limit, for one client.
// A rejected burst does not count against the minute window.
// Store degradation: on store failure, logs warning and allows request.
func (uc *RateLimiterUseCase) Check(ctx context.Context, clientIP string) error {
	count, _, err := uc.repo.Increment(ctx, "burst:"+clientIP, burstWindow)
	if err != nil {
		uc.logger.Warnf("burst check failed for %s: %v (request allowed)", clientIP, err)
		return nil
	}
	if count > uc.burst {
		uc.logger.Warnw("burst limit exceeded", "client_ip", clientIP, "current", count, "limit", uc.burst)
		uc.metrics.RateLimited(ReasonBurstLimit)
		return newRateLimitExceededError(ReasonBurstLimit,
			"Too many requests per second. Possible infinite loop detected.",
			fmt.Sprintf("Burst limit: max %d requests/second", uc.burst),
			1)
	}

	count, remaining, err := uc.repo.Increment(ctx, "rpm:"+clientIP, minuteWindow)
	if err != nil {
		uc.logger.Warnf("rpm check failed for %s: %v (request allowed)", clientIP, err)
		return nil
	}
	if count > uc.rpm {
		retryAfter := int64(math.Ceil(remaining.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		uc.logger.Warnw("rpm limit exceeded", "client_ip", clientIP, "current", count, "limit", uc.rpm)
		uc.metrics.RateLimited(ReasonRateLimit)
		return newRateLimitExceededError(ReasonRateLimit,
			"Too many requests. Please slow down.",
			fmt.Sprintf("Rate limit: %d requests/minute", uc.rpm),
			retryAfter)
	}
	return nil
}
