package service

import (
	"context"
	"time"

	"CivicGate/internal/biz"
	"CivicGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// BuildInfo is the name, version and environment stamped into /health and
// the service directory.
type BuildInfo struct {
	Name        string
	Version     string
	Environment string
}

// HealthResponse is the gateway's own liveness answer. It is not enveloped
// so that it matches the engines' /health shape.
type HealthResponse struct {
	Engine        string  `json:"engine"`
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// RecentEventsRequest is the query of /api/v1/debug/events.
type RecentEventsRequest struct {
	Limit int `json:"limit"`
}

// SystemService serves the operational routes.
type SystemService struct {
	uc      *biz.SystemUsecase
	info    BuildInfo
	started time.Time
	log     *log.Helper
}

// NewSystemService creates a new SystemService.
func NewSystemService(uc *biz.SystemUsecase, info BuildInfo, logger log.Logger) *SystemService {
	return &SystemService{
		uc:      uc,
		info:    info,
		started: time.Now(),
		log:     log.NewHelper(logger),
	}
}

// Health reports the gateway itself as healthy.
func (s *SystemService) Health(_ context.Context, _ *struct{}) (*HealthResponse, error) {
	return &HealthResponse{
		Engine:        model.EngineAPIGateway,
		Status:        model.EngineHealthy,
		Version:       s.info.Version,
		UptimeSeconds: time.Since(s.started).Seconds(),
	}, nil
}

// Directory lists the gateway's routes.
func (s *SystemService) Directory(ctx context.Context, _ *struct{}) (*Envelope, error) {
	proxies := make(map[string]string, len(model.ProxyRoutes))
	for _, route := range model.ProxyRoutes {
		proxies[route.Prefix] = "/api/v1/" + route.Prefix + "/*"
	}
	return NewEnvelope(ctx, true, s.info.Name, map[string]interface{}{
		"version":     s.info.Version,
		"environment": s.info.Environment,
		"engines":     s.uc.EngineCount(),
		"health":      "/health",
		"metrics":     "/metrics",
		"composite_routes": map[string]string{
			"query":             "POST /api/v1/query",
			"onboard":           "POST /api/v1/onboard",
			"check_eligibility": "POST /api/v1/check-eligibility",
			"ingest_policy":     "POST /api/v1/ingest-policy",
			"voice_query":       "POST /api/v1/voice-query",
			"simulate":          "POST /api/v1/simulate",
		},
		"system_routes": map[string]string{
			"circuit_breaker": "GET /api/v1/circuit-breaker/status",
			"engines_health":  "GET /api/v1/engines/health",
			"debug_events":    "GET /api/v1/debug/events",
		},
		"proxy_routes": proxies,
	}), nil
}

// CircuitStatus returns every breaker's state.
func (s *SystemService) CircuitStatus(ctx context.Context, _ *struct{}) (*Envelope, error) {
	return NewEnvelope(ctx, true, "", s.uc.CircuitStatus()), nil
}

// EnginesHealth probes all engines.
func (s *SystemService) EnginesHealth(ctx context.Context, _ *struct{}) (*Envelope, error) {
	return NewEnvelope(ctx, true, "", s.uc.EnginesHealth(ctx)), nil
}

// RecentEvents returns the most recent audit records.
func (s *SystemService) RecentEvents(ctx context.Context, req *RecentEventsRequest) (*Envelope, error) {
	records, err := s.uc.RecentEvents(ctx, req.Limit)
	if err != nil {
		s.log.WithContext(ctx).Errorf("failed to read recent events: %v", err)
		return nil, err
	}
	if records == nil {
		records = []*model.AuditRecord{}
	}
	return NewEnvelope(ctx, true, "", map[string]interface{}{
		"recent_events": records,
		"count":         len(records),
	}), nil
}
