package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"CivicGate/internal/conf"
	"CivicGate/internal/model"
	apperrors "CivicGate/pkg/errors"
	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultEngineTimeout = 15 * time.Second
	// 下游响应体上限
	maxEngineResponseBytes = 16 << 20
	// 错误详情截断长度
	maxErrorDetailLen = 500
)

// EngineClient performs single HTTP calls to named downstream engines.
// Every call consults the circuit breaker first; only transport failures
// count against it.
type EngineClient struct {
	endpoints      map[string]string
	breaker        *CircuitBreakerRegistry
	client         *http.Client
	transport      http.RoundTripper
	defaultTimeout time.Duration
	monitor        *Monitor
	log            *pkglog.LogHelper
}

// NewEngineClient creates the engine client from the engines config.
func NewEngineClient(c *conf.Engines, breaker *CircuitBreakerRegistry, monitor *Monitor, logger log.Logger) (*EngineClient, error) {
	if c == nil {
		return nil, fmt.Errorf("engines configuration is nil")
	}

	transport, err := newEngineTransport(c.ProxyUrl)
	if err != nil {
		return nil, err
	}

	timeout := c.DefaultTimeout.AsDuration()
	if timeout <= 0 {
		timeout = defaultEngineTimeout
	}

	endpoints := make(map[string]string)
	for key, base := range c.EndpointURLs() {
		endpoints[key] = strings.TrimRight(base, "/")
	}

	return &EngineClient{
		endpoints: endpoints,
		breaker:   breaker,
		// 超时由每次调用的 context 控制
		client:         &http.Client{Transport: transport},
		transport:      transport,
		defaultTimeout: timeout,
		monitor:        monitor,
		log:            pkglog.NewLogHelper(logger),
	}, nil
}

// Call performs one request and returns the (unwrapped) JSON body.
// Errors are always *apperrors.EngineCallError.
func (c *EngineClient) Call(ctx context.Context, req *model.EngineRequest) (json.RawMessage, error) {
	base, ok := c.endpoints[req.Engine]
	if !ok || base == "" {
		return nil, apperrors.NewConfigurationError(req.Engine)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := c.newRequest(callCtx, base, req)
	if err != nil {
		return nil, apperrors.NewProtocolError(req.Engine, err)
	}

	if !c.breaker.AllowRequest(req.Engine) {
		c.monitor.ObserveEngineCall(req.Engine, apperrors.ErrorTypeCircuitOpen.String(), 0)
		return nil, apperrors.NewCircuitOpenError(req.Engine)
	}

	body, status, err := c.do(httpReq)
	if err != nil {
		callErr := apperrors.ClassifyTransportError(req.Engine, timeout, err)
		if callErr.TripsBreaker() {
			c.breaker.RecordFailure(req.Engine)
		}
		return nil, c.finish(ctx, req, start, callErr)
	}

	// 能连通即视为可用，4xx/5xx 不计入熔断
	if status >= http.StatusBadRequest {
		c.breaker.RecordSuccess(req.Engine)
		return nil, c.finish(ctx, req, start, apperrors.NewApplicationError(req.Engine, status, truncate(string(body), maxErrorDetailLen)))
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		c.breaker.RecordSuccess(req.Engine)
		_ = c.finish(ctx, req, start, nil)
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		c.breaker.RecordFailure(req.Engine)
		return nil, c.finish(ctx, req, start, apperrors.NewProtocolError(req.Engine, fmt.Errorf("invalid JSON response from %s%s", req.Engine, req.Path)))
	}

	c.breaker.RecordSuccess(req.Engine)
	_ = c.finish(ctx, req, start, nil)
	return unwrapData(body), nil
}

func (c *EngineClient) newRequest(ctx context.Context, base string, req *model.EngineRequest) (*http.Request, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	target := base + req.Path
	var body io.Reader
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		payload := req.Payload
		if payload == nil {
			payload = map[string]interface{}{}
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	default:
		query, err := encodeQuery(req.Payload)
		if err != nil {
			return nil, err
		}
		if len(query) > 0 {
			target += "?" + query.Encode()
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	requestID := req.RequestID
	if requestID == "" && pkglog.HasRequestContext(ctx) {
		requestID = pkglog.GetTraceID(ctx)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
		httpReq.Header.Set("X-Trace-ID", requestID)
	}
	if req.Authorization != "" {
		httpReq.Header.Set("Authorization", req.Authorization)
	}
	return httpReq, nil
}

func (c *EngineClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEngineResponseBytes))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (c *EngineClient) finish(ctx context.Context, req *model.EngineRequest, start time.Time, callErr *apperrors.EngineCallError) error {
	elapsed := time.Since(start)
	outcome := "ok"
	if callErr != nil {
		outcome = callErr.Type.String()
	}
	c.monitor.ObserveEngineCall(req.Engine, outcome, elapsed)
	if callErr == nil {
		c.log.Engine(ctx, req.Engine, req.Path, elapsed, nil)
		return nil
	}
	c.log.Engine(ctx, req.Engine, req.Path, elapsed, callErr, "status", callErr.Status, "error_type", outcome)
	return callErr
}

// Probe calls GET /health on one engine without touching the breaker.
func (c *EngineClient) Probe(ctx context.Context, engine string, timeout time.Duration) *model.EngineHealth {
	base := c.endpoints[engine]
	health := &model.EngineHealth{
		Engine: engine,
		Status: model.EngineUnreachable,
		Port:   portOf(base),
	}
	if base == "" {
		return health
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return health
	}
	// 能连通且返回 JSON 即视为健康
	body, _, err := c.do(req)
	if err != nil || !json.Valid(body) {
		return health
	}

	health.Status = model.EngineHealthy
	var payload struct {
		UptimeSeconds *float64 `json:"uptime_seconds"`
		Data          *struct {
			UptimeSeconds *float64 `json:"uptime_seconds"`
		} `json:"data"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.UptimeSeconds != nil:
			health.Uptime = payload.UptimeSeconds
		case payload.Data != nil && payload.Data.UptimeSeconds != nil:
			health.Uptime = payload.Data.UptimeSeconds
		}
	}
	return health
}

// Engines returns the configured engine keys, sorted.
func (c *EngineClient) Engines() []string {
	keys := make([]string, 0, len(c.endpoints))
	for key := range c.endpoints {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// BaseURL returns the resolved base URL of an engine.
func (c *EngineClient) BaseURL(engine string) (string, bool) {
	base, ok := c.endpoints[engine]
	return base, ok && base != ""
}

// Transport exposes the shared outbound transport (proxy routes reuse it).
func (c *EngineClient) Transport() http.RoundTripper {
	return c.transport
}

// unwrapData strips one level of {"data": ...} envelope.
func unwrapData(body []byte) json.RawMessage {
	if len(body) == 0 || body[0] != '{' {
		return body
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	if inner, ok := envelope["data"]; ok {
		return inner
	}
	return body
}

// encodeQuery flattens a payload into query parameters.
func encodeQuery(payload interface{}) (url.Values, error) {
	values := url.Values{}
	if payload == nil {
		return values, nil
	}
	if v, ok := payload.(url.Values); ok {
		return v, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("query payload must be an object: %w", err)
	}
	for key, value := range fields {
		switch v := value.(type) {
		case nil:
		case string:
			values.Set(key, v)
		case []interface{}:
			for _, item := range v {
				values.Add(key, fmt.Sprint(item))
			}
		default:
			values.Set(key, fmt.Sprint(v))
		}
	}
	return values, nil
}

func portOf(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return u.Port()
}

// truncate 截断到最多 n 字节，不拆开多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
