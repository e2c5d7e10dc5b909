package middleware

import (
	"context"
	nethttp "net/http"

	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// Limiter decides whether a client may proceed.
// Implementation is in biz layer (biz.RateLimiterUseCase).
type Limiter interface {
	Check(ctx context.Context, clientIP string) error
}

// 不限流的路径：健康检查、服务目录、指标、文档
var rateLimitExempt = map[string]bool{
	"/":        true,
	"/health":  true,
	"/metrics": true,
	"/docs":    true,
}

// RateLimit 返回按对端 IP 限流的 filter
// 限流 key 取 RemoteAddr，X-Forwarded-For 等 header 只用于日志
// CORS 预检请求直接放行；被拒绝的请求由 encode 写出 429 信封
func RateLimit(limiter Limiter, encode http.EncodeErrorFunc, logger *pkglog.LogHelper) http.FilterFunc {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			if r.Method == nethttp.MethodOptions || rateLimitExempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			peer := PeerIP(r)
			if err := limiter.Check(ctx, peer); err != nil {
				logger.RateLimit(ctx, "request rejected", "method", r.Method, "path", r.URL.Path, "peer", peer)
				encode(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
