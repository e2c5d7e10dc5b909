package server

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"CivicGate/internal/conf"
	"CivicGate/internal/data"
	"CivicGate/internal/model"
	"CivicGate/internal/server/middleware"
	apperrors "CivicGate/pkg/errors"
	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	kmiddleware "github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	apiPrefix           = "/api/v1"
	defaultProxyTimeout = 30 * time.Second
)

// 只透传这些请求头，trace id 通过 X-Request-ID 传递
var forwardedHeaders = []string{"Content-Type", "Authorization", "Accept"}

// Proxy forwards /api/v1/<prefix>/* verbatim to the owning engine.
// It bypasses the circuit breaker; failures map to 503/504/502 envelopes.
type Proxy struct {
	engines *data.EngineClient
	monitor *data.Monitor
	timeout time.Duration
	auth    kmiddleware.Middleware
	encode  http.EncodeErrorFunc
	log     *pkglog.LogHelper
}

// NewProxy creates the proxy for the configured engines.
func NewProxy(c *conf.Engines, a *conf.Auth, engines *data.EngineClient, monitor *data.Monitor, logger log.Logger) *Proxy {
	timeout := defaultProxyTimeout
	if c != nil && c.ProxyTimeout.AsDuration() > 0 {
		timeout = c.ProxyTimeout.AsDuration()
	}
	helper := pkglog.NewLogHelper(logger)
	return &Proxy{
		engines: engines,
		monitor: monitor,
		timeout: timeout,
		auth:    middleware.JWT(jwtSecret(a), helper),
		encode:  newErrorEncoder(logger),
		log:     helper,
	}
}

// Register mounts one prefix handler per proxy route.
// Routes whose engine has no configured URL are skipped.
func (p *Proxy) Register(srv *http.Server) {
	for _, route := range model.ProxyRoutes {
		base, ok := p.engines.BaseURL(route.Engine)
		if !ok {
			p.log.Gateway("proxy route skipped: engine not configured", "prefix", route.Prefix, "engine", route.Engine)
			continue
		}
		target, err := url.Parse(base)
		if err != nil {
			p.log.Gateway("proxy route skipped: invalid engine url", "prefix", route.Prefix, "engine", route.Engine, "url", base)
			continue
		}
		srv.HandlePrefix(apiPrefix+"/"+route.Prefix+"/", p.handler(route, target))
	}
}

func (p *Proxy) handler(route model.ProxyRoute, target *url.URL) nethttp.Handler {
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = strings.TrimSuffix(target.Path, "/") + strings.TrimPrefix(pr.In.URL.Path, apiPrefix)
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host

			header := make(nethttp.Header, len(forwardedHeaders)+1)
			for _, key := range forwardedHeaders {
				if v := pr.In.Header.Get(key); v != "" {
					header.Set(key, v)
				}
			}
			header.Set(middleware.HeaderRequestID, pkglog.GetTraceID(pr.In.Context()))
			pr.Out.Header = header
		},
		Transport: p.engines.Transport(),
		ModifyResponse: func(resp *nethttp.Response) error {
			// CORS 和 trace header 由网关统一写出
			for key := range resp.Header {
				if strings.HasPrefix(key, "Access-Control-") {
					resp.Header.Del(key)
				}
			}
			resp.Header.Del(middleware.HeaderTraceID)
			resp.Header.Del(middleware.HeaderRequestID)
			return nil
		},
		ErrorHandler: func(w nethttp.ResponseWriter, r *nethttp.Request, err error) {
			callErr := apperrors.ClassifyTransportError(route.Engine, p.timeout, err)
			if call, ok := r.Context().Value(proxyCallKey{}).(*proxyCall); ok {
				call.outcome = callErr.Type.String()
			}
			p.log.Engine(r.Context(), route.Engine, r.URL.Path, 0, callErr, "status", callErr.Status, "proxy", true)
			p.encode(w, r, proxyError(callErr))
		},
	}

	forward := func(ctx context.Context, req interface{}) (interface{}, error) {
		call := req.(*proxyCall)
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		rp.ServeHTTP(call.w, call.r.WithContext(ctx))
		return nil, nil
	}
	if !route.Public {
		forward = p.auth(forward)
	}

	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		start := time.Now()
		call := &proxyCall{w: w, r: r, outcome: "ok"}
		ctx := context.WithValue(r.Context(), proxyCallKey{}, call)
		call.r = r.WithContext(ctx)
		if _, err := forward(ctx, call); err != nil {
			p.encode(w, r, err)
			return
		}
		if p.monitor != nil {
			p.monitor.ObserveEngineCall(route.Engine, "proxy_"+call.outcome, time.Since(start))
		}
	})
}

type proxyCallKey struct{}

// proxyCall carries one forwarded request through the middleware chain.
type proxyCall struct {
	w       nethttp.ResponseWriter
	r       *nethttp.Request
	outcome string
}

// proxyError converts a transport failure into a front-door error.
// Connection failure is 503, timeout 504, anything else 502.
func proxyError(callErr *apperrors.EngineCallError) error {
	status := nethttp.StatusBadGateway
	message := "Bad gateway"
	switch callErr.Type {
	case apperrors.ErrorTypeConnection:
		status = nethttp.StatusServiceUnavailable
		message = "Service temporarily unavailable"
	case apperrors.ErrorTypeTimeout:
		status = nethttp.StatusGatewayTimeout
		message = "Engine timed out"
	}
	return errors.New(status, callErr.Type.String(), message).WithMetadata(map[string]string{
		"detail": fmt.Sprintf("%s: %s", message, callErr.Detail),
	})
}
