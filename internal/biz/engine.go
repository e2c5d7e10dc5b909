package biz

import (
	"context"
	"encoding/json"
	"time"

	"CivicGate/internal/model"
)

// EngineCaller performs one downstream engine call.
// Implementation is in data layer (data.EngineClient).
type EngineCaller interface {
	Call(ctx context.Context, req *model.EngineRequest) (json.RawMessage, error)
}

// EngineProber probes engine /health endpoints without the circuit breaker.
type EngineProber interface {
	Engines() []string
	Probe(ctx context.Context, engine string, timeout time.Duration) *model.EngineHealth
}

// AuditEmitter records pipeline outcomes in the background.
type AuditEmitter interface {
	Emit(ctx context.Context, record *model.AuditRecord)
}

// CircuitInspector exposes the breaker snapshot.
type CircuitInspector interface {
	Status() map[string]model.CircuitStatus
}

// EventJournal returns recently emitted audit records.
type EventJournal interface {
	Recent(ctx context.Context, n int) ([]*model.AuditRecord, error)
}

// Metrics receives pipeline and front-door measurements.
// Implementation is in data layer (data.Monitor).
type Metrics interface {
	ObserveStep(pipeline, step string, d time.Duration)
	StepDegraded(pipeline, step string)
	PipelineFinished(pipeline, result string)
	RateLimited(reason string)
	SetEngineUp(engine string, up bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveStep(string, string, time.Duration) {}
func (noopMetrics) StepDegraded(string, string)               {}
func (noopMetrics) PipelineFinished(string, string)           {}
func (noopMetrics) RateLimited(string)                        {}
func (noopMetrics) SetEngineUp(string, bool)                  {}

type authorizationKey struct{}

// WithAuthorization stores the inbound Authorization header for forwarding.
func WithAuthorization(ctx context.Context, authorization string) context.Context {
	if authorization == "" {
		return ctx
	}
	return context.WithValue(ctx, authorizationKey{}, authorization)
}

// AuthorizationFrom returns the inbound Authorization header, if any.
func AuthorizationFrom(ctx context.Context) string {
	v, _ := ctx.Value(authorizationKey{}).(string)
	return v
}
