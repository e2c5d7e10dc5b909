package middleware

import (
	"fmt"
	"io"
	nethttp "net/http"
	"time"

	pkglog "CivicGate/pkg/log"

	"github.com/felixge/httpsnoop"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// HeaderResponseTime carries the gateway-side latency of every response.
const HeaderResponseTime = "X-Response-Time"

// Logging 返回记录 HTTP 请求日志的 filter
// 在响应头写出前追加 X-Response-Time，超过阈值的请求额外输出慢请求告警
//
// 日志输出示例:
//
//	🟢 POST /api/v1/query - 200 (542ms) | TraceID: 2b0c...
//	🐌 [2b0c...] Slow request detected | POST /api/v1/query | 3438ms (threshold: 3000ms)
func Logging(logger *pkglog.LogHelper) http.FilterFunc {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			start := time.Now()
			status := nethttp.StatusOK
			wroteHeader := false

			stamp := func() {
				if wroteHeader {
					return
				}
				wroteHeader = true
				elapsed := float64(time.Since(start).Microseconds()) / 1000
				w.Header().Set(HeaderResponseTime, fmt.Sprintf("%.1fms", elapsed))
			}

			ww := httpsnoop.Wrap(w, httpsnoop.Hooks{
				WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
					return func(code int) {
						if !wroteHeader {
							status = code
						}
						stamp()
						next(code)
					}
				},
				Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
					return func(b []byte) (int, error) {
						stamp()
						return next(b)
					}
				},
				ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
					return func(src io.Reader) (int64, error) {
						stamp()
						return next(src)
					}
				},
			})

			next.ServeHTTP(ww, r)

			url := r.URL.Path
			if r.URL.RawQuery != "" {
				url = url + "?" + r.URL.RawQuery
			}
			logger.RequestWithContext(r.Context(), r.Method, url, status, time.Since(start).Milliseconds(),
				"ip", ClientIP(r),
				"user_agent", r.UserAgent(),
			)
		})
	}
}
