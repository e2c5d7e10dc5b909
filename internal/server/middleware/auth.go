package middleware

import (
	"context"
	"strings"

	"CivicGate/internal/biz"
	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/auth/jwt"
	"github.com/go-kratos/kratos/v2/middleware/selector"
	"github.com/go-kratos/kratos/v2/transport"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// JWT 返回 HS256 bearer token 校验中间件
// public 中列出的 operation 跳过校验
func JWT(secret string, logger *pkglog.LogHelper, public ...string) middleware.Middleware {
	skip := make(map[string]bool, len(public))
	for _, op := range public {
		skip[op] = true
	}

	return selector.Server(
		jwt.Server(
			func(*jwtv5.Token) (interface{}, error) {
				return []byte(secret), nil
			},
			jwt.WithSigningMethod(jwtv5.SigningMethodHS256),
			jwt.WithClaims(func() jwtv5.Claims { return jwtv5.MapClaims{} }),
		),
		Principal(logger),
	).Match(func(_ context.Context, operation string) bool {
		return !skip[operation]
	}).Build()
}

// Principal 记录已认证用户 (JWT sub)
func Principal(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if claims, ok := jwt.FromContext(ctx); ok {
				if sub, err := claims.GetSubject(); err == nil && sub != "" {
					pkglog.SetUserID(ctx, sub)
					logger.Auth("authenticated request", "trace_id", pkglog.GetTraceID(ctx), "user_id", sub)
				}
			}
			return handler(ctx, req)
		}
	}
}

// ForwardAuthorization 保存原始 Authorization header，供下游引擎调用透传
func ForwardAuthorization() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if tr, ok := transport.FromServerContext(ctx); ok {
				if authorization := strings.TrimSpace(tr.RequestHeader().Get("Authorization")); authorization != "" {
					ctx = biz.WithAuthorization(ctx, authorization)
				}
			}
			return handler(ctx, req)
		}
	}
}
