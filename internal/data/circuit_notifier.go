package data

import (
	"context"

	"CivicGate/internal/model"
	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// CircuitNotifier reacts to breaker transitions: it logs them and keeps the
// circuit_state gauge current. No outbound webhook is sent.
type CircuitNotifier struct {
	monitor *Monitor
	log     *pkglog.LogHelper
}

// NewCircuitNotifier creates a new circuit notifier.
func NewCircuitNotifier(monitor *Monitor, logger log.Logger) *CircuitNotifier {
	return &CircuitNotifier{
		monitor: monitor,
		log:     pkglog.NewLogHelper(logger),
	}
}

// CircuitOpened records an open (or re-open) transition.
func (n *CircuitNotifier) CircuitOpened(_ context.Context, event *model.CircuitOpenedEvent) {
	msg := "circuit opened"
	if event.Reopened {
		msg = "probe failed, circuit re-opened"
	}
	n.log.Circuit(event.Engine, msg,
		"failures", event.Failures,
		"opened_at", event.OpenedAt)
	n.monitor.SetCircuitState(event.Engine, model.CircuitOpen)
}

// CircuitRecovered records a close transition.
func (n *CircuitNotifier) CircuitRecovered(_ context.Context, event *model.CircuitRecoveredEvent) {
	n.log.Circuit(event.Engine, "circuit recovered",
		"recover_time", event.RecoverTime.String(),
		"recovered_at", event.RecoveredAt)
	n.monitor.SetCircuitState(event.Engine, model.CircuitClosed)
}
