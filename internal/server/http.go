package server

import (
	nethttp "net/http"

	"CivicGate/internal/biz"
	"CivicGate/internal/conf"
	"CivicGate/internal/server/middleware"
	"CivicGate/internal/service"
	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 无需 JWT 的 operation
var publicOperations = []string{
	service.OperationOrchestratorOnboard,
	service.OperationOrchestratorVoiceQuery,
	service.OperationSystemHealth,
	service.OperationSystemDirectory,
}

// NewHTTPServer new an HTTP server.
func NewHTTPServer(
	c *conf.Server,
	cors *conf.Cors,
	rl *conf.RateLimit,
	auth *conf.Auth,
	orchestrator *service.OrchestratorService,
	system *service.SystemService,
	limiter *biz.RateLimiterUseCase,
	proxy *Proxy,
	registry *prometheus.Registry,
	logger log.Logger,
) *http.Server {
	// 创建增强的日志辅助器
	logHelper := pkglog.NewLogHelper(logger)
	encode := newErrorEncoder(logger)

	// filter 在路由之前执行，404 和限流响应同样带 trace id
	filters := []http.FilterFunc{
		middleware.Trace(),
		corsFilter(cors),
		middleware.Logging(logHelper),
	}
	if rl == nil || rl.Enabled {
		filters = append(filters, middleware.RateLimit(limiter, encode, logHelper))
	}

	var opts = []http.ServerOption{
		http.Filter(filters...),
		http.Middleware(
			recovery.Recovery(),
			middleware.ForwardAuthorization(),
			middleware.JWT(jwtSecret(auth), logHelper, publicOperations...),
		),
		http.ErrorEncoder(encode),
		http.NotFoundHandler(errorHandler(encode, errors.NotFound(service.CodeNotFound, "Resource not found"))),
		http.MethodNotAllowedHandler(errorHandler(encode,
			errors.New(nethttp.StatusMethodNotAllowed, service.CodeMethodNotAllowed, "Method not allowed"))),
	}
	if c.Http != nil {
		if c.Http.Network != "" {
			opts = append(opts, http.Network(c.Http.Network))
		}
		if c.Http.Addr != "" {
			opts = append(opts, http.Address(c.Http.Addr))
		}
		if c.Http.Timeout != nil {
			opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
		}
	}
	srv := http.NewServer(opts...)

	// Register HTTP services
	service.RegisterOrchestratorHTTPServer(srv, orchestrator)
	service.RegisterSystemHTTPServer(srv, system)
	proxy.Register(srv)
	srv.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return srv
}

func corsFilter(c *conf.Cors) http.FilterFunc {
	var origins []string
	if c != nil {
		origins = c.Origins
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.HeaderTraceID, middleware.HeaderRequestID}),
		handlers.ExposedHeaders([]string{middleware.HeaderTraceID, middleware.HeaderRequestID, middleware.HeaderResponseTime, "Retry-After"}),
		handlers.AllowCredentials(),
	)
}

func errorHandler(encode http.EncodeErrorFunc, err error) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		encode(w, r, err)
	})
}
