package log

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const requestContextKey contextKey = "civicgate_request_context"

// RequestContext 存储请求追踪信息
// 由前置 filter 注入，流水线与下游调用都从这里读取 trace id
type RequestContext struct {
	TraceID   string    // X-Trace-ID / X-Request-ID
	ClientIP  string    // 客户端 IP
	StartTime time.Time // 请求开始时间

	mu       sync.RWMutex
	userID   string
	metadata map[string]interface{}
}

// GenerateTraceID 生成新的 trace id (UUIDv4)
func GenerateTraceID() string {
	return uuid.NewString()
}

// WithRequestContext 将 RequestContext 注入到 Context 中
func WithRequestContext(ctx context.Context, traceID, clientIP string) context.Context {
	return context.WithValue(ctx, requestContextKey, &RequestContext{
		TraceID:   traceID,
		ClientIP:  clientIP,
		StartTime: time.Now(),
		metadata:  make(map[string]interface{}),
	})
}

// GetRequestContext 从 Context 中提取 RequestContext
// 不存在时返回 TraceID 为 "unknown" 的默认值，调用方无需判空
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{TraceID: "unknown", metadata: make(map[string]interface{})}
}

// HasRequestContext reports whether a filter already attached a RequestContext.
func HasRequestContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	_, ok := ctx.Value(requestContextKey).(*RequestContext)
	return ok
}

// GetTraceID 从 Context 中提取 trace id
func GetTraceID(ctx context.Context) string {
	return GetRequestContext(ctx).TraceID
}

// SetUserID 记录认证后的用户 (JWT sub)
func SetUserID(ctx context.Context, userID string) {
	reqCtx := GetRequestContext(ctx)
	reqCtx.mu.Lock()
	reqCtx.userID = userID
	reqCtx.mu.Unlock()
}

// GetUserID 返回认证用户，未认证时为空
func GetUserID(ctx context.Context) string {
	reqCtx := GetRequestContext(ctx)
	reqCtx.mu.RLock()
	defer reqCtx.mu.RUnlock()
	return reqCtx.userID
}

// SetMetadata 设置扩展元数据
func SetMetadata(ctx context.Context, key string, value interface{}) {
	reqCtx := GetRequestContext(ctx)
	reqCtx.mu.Lock()
	defer reqCtx.mu.Unlock()
	if reqCtx.metadata == nil {
		reqCtx.metadata = make(map[string]interface{})
	}
	reqCtx.metadata[key] = value
}

// GetMetadata 获取扩展元数据
func GetMetadata(ctx context.Context, key string) (interface{}, bool) {
	reqCtx := GetRequestContext(ctx)
	reqCtx.mu.RLock()
	defer reqCtx.mu.RUnlock()
	value, ok := reqCtx.metadata[key]
	return value, ok
}

// GetElapsedTime 获取请求已执行时间（毫秒）
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
