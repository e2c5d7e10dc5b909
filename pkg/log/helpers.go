package log

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// SlowRequestThreshold 慢请求阈值
const SlowRequestThreshold = 3 * time.Second

// LogHelper 扩展 Kratos log.Helper，按日志类别自动附加 "type" 字段
// EmojiConsoleEncoder 根据 "type" 选择表情符号
type LogHelper struct {
	*log.Helper
}

// NewLogHelper 创建增强的日志辅助器
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{Helper: log.NewHelper(logger)}
}

func withType(logType, msg string, kvs []interface{}) []interface{} {
	out := make([]interface{}, 0, len(kvs)+4)
	out = append(out, "msg", msg)
	out = append(out, kvs...)
	return append(out, "type", logType)
}

// Gateway 网关通用日志（🚪）
func (h *LogHelper) Gateway(msg string, kvs ...interface{}) {
	h.Infow(withType("gateway", msg, kvs)...)
}

// Startup 启动日志（🚀）
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(withType("startup", msg, kvs)...)
}

// Auth 认证日志（🔓）
func (h *LogHelper) Auth(msg string, kvs ...interface{}) {
	h.Infow(withType("auth", msg, kvs)...)
}

// Security 安全告警（🔒）
func (h *LogHelper) Security(msg string, kvs ...interface{}) {
	h.Warnw(withType("security", msg, kvs)...)
}

// RateLimit 限流日志（🚦）
func (h *LogHelper) RateLimit(ctx context.Context, msg string, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)
	kvs = append(kvs, "trace_id", reqCtx.TraceID, "ip", reqCtx.ClientIP)
	h.Warnw(withType("rate_limit", msg, kvs)...)
}

// Circuit 熔断器状态变化（⚡）
func (h *LogHelper) Circuit(engine, msg string, kvs ...interface{}) {
	kvs = append(kvs, "engine", engine)
	h.Warnw(withType("circuit", msg, kvs)...)
}

// Audit 审计日志（📋）
func (h *LogHelper) Audit(msg string, kvs ...interface{}) {
	h.Infow(withType("audit", msg, kvs)...)
}

// Engine 下游引擎调用（🔗），失败时为 warn
func (h *LogHelper) Engine(ctx context.Context, engine, path string, duration time.Duration, err error, kvs ...interface{}) {
	traceID := GetTraceID(ctx)
	kvs = append(kvs,
		"trace_id", traceID,
		"engine", engine,
		"path", path,
		"duration_ms", duration.Milliseconds(),
	)
	if err != nil {
		kvs = append(kvs, "error", err.Error())
		h.Warnw(withType("engine", fmt.Sprintf("[%s] %s%s failed", traceID, engine, path), kvs)...)
		return
	}
	h.Debugw(withType("engine", fmt.Sprintf("[%s] %s%s ok", traceID, engine, path), kvs)...)
}

// Pipeline 流水线完成日志（🧩）
func (h *LogHelper) Pipeline(ctx context.Context, pipeline string, success bool, degraded []string, duration time.Duration, kvs ...interface{}) {
	traceID := GetTraceID(ctx)
	msg := fmt.Sprintf("[%s] pipeline %s finished in %dms", traceID, pipeline, duration.Milliseconds())
	kvs = append(kvs,
		"trace_id", traceID,
		"pipeline", pipeline,
		"success", success,
		"degraded", degraded,
		"duration_ms", duration.Milliseconds(),
	)
	if !success || len(degraded) > 0 {
		h.Warnw(withType("pipeline", msg, kvs)...)
		return
	}
	h.Infow(withType("pipeline", msg, kvs)...)
}

// Degraded 可选步骤失败（🩹）
func (h *LogHelper) Degraded(ctx context.Context, pipeline, step string, err error) {
	traceID := GetTraceID(ctx)
	h.Warnw(withType("degraded", fmt.Sprintf("[%s] %s: step %s degraded", traceID, pipeline, step), []interface{}{
		"trace_id", traceID,
		"pipeline", pipeline,
		"step", step,
		"error", fmt.Sprint(err),
	})...)
}

// SlowRequest 慢请求警告（🐌）
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, durationMs, thresholdMs int64) {
	traceID := GetTraceID(ctx)
	msg := fmt.Sprintf("[%s] Slow request detected | %s %s | %dms (threshold: %dms)",
		traceID, method, url, durationMs, thresholdMs)
	h.Warnw(withType("slow_request", msg, []interface{}{
		"trace_id", traceID,
		"method", method,
		"url", url,
		"duration_ms", durationMs,
		"threshold_ms", thresholdMs,
	})...)
}

// RequestWithContext 记录 HTTP 请求日志并检测慢请求
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)
	msg := fmt.Sprintf("%s %s - %d (%dms) | TraceID: %s", method, url, status, durationMs, reqCtx.TraceID)
	kvs = append(kvs,
		"trace_id", reqCtx.TraceID,
		"user_id", GetUserID(ctx),
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(withType("request", msg, kvs)...)

	if threshold := SlowRequestThreshold.Milliseconds(); durationMs > threshold {
		h.SlowRequest(ctx, method, url, durationMs, threshold)
	}
}
