// Package biz contains business logic layer implementations.
// This layer holds the pipelines, the step executor and the front-door limits.
package biz

import (
	"CivicGate/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewExecutor,
	NewOrchestratorUsecase,
	NewSystemUsecase,
	NewRateLimiterUseCase,
	NewRateLimitRepo,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(EngineCaller), new(*data.EngineClient)),
	wire.Bind(new(EngineProber), new(*data.EngineClient)),
	wire.Bind(new(AuditEmitter), new(*data.AuditEmitter)),
	wire.Bind(new(CircuitInspector), new(*data.CircuitBreakerRegistry)),
	wire.Bind(new(EventJournal), new(*data.EventJournal)),
	wire.Bind(new(Metrics), new(*data.Monitor)),
)

// NewRateLimitRepo adapts the selected store (Redis or memory).
func NewRateLimitRepo(store data.RateLimitStore) RateLimitRepo {
	return store
}
