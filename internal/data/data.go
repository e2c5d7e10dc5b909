// Package data provides the gateway's infrastructure: the downstream engine
// client and its circuit breakers, the audit emitter, the rate-limit stores
// and the metrics monitor.
package data

import (
	"github.com/google/wire"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewRedisClient,
	NewMetricsRegistry,
	NewMonitor,
	NewCircuitNotifier,
	wire.Bind(new(CircuitListener), new(*CircuitNotifier)),
	NewCircuitBreakerRegistry,
	NewEngineClient,
	NewEventJournal,
	NewAuditEmitter,
	NewRateLimitStore,
)
