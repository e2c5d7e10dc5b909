// Package middleware provides the gateway's HTTP filters and Kratos middleware:
// trace propagation, access logging, rate limiting and JWT authentication.
package middleware

import (
	"net"
	nethttp "net/http"
	"strings"

	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	HeaderTraceID   = "X-Trace-ID"
	HeaderRequestID = "X-Request-ID"
)

// Trace 为每个请求确定 trace id 并注入 RequestContext
// 优先级: X-Trace-ID > X-Request-ID > 新生成的 UUID
// 响应同时回写两个 header
func Trace() http.FilterFunc {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			traceID := r.Header.Get(HeaderTraceID)
			if traceID == "" {
				traceID = r.Header.Get(HeaderRequestID)
			}
			if traceID == "" {
				traceID = pkglog.GenerateTraceID()
			}
			w.Header().Set(HeaderTraceID, traceID)
			w.Header().Set(HeaderRequestID, traceID)

			ctx := pkglog.WithRequestContext(r.Context(), traceID, ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP 从请求中提取客户端真实 IP
// 优先级: X-Real-IP > X-Forwarded-For > RemoteAddr
func ClientIP(req *nethttp.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	// 取第一个 IP
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	return PeerIP(req)
}

// PeerIP 返回传输层对端地址，不读取任何客户端可控的 header
func PeerIP(req *nethttp.Request) string {
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		return host
	}
	if req.RemoteAddr == "" {
		return "unknown"
	}
	return req.RemoteAddr
}
