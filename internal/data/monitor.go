package data

import (
	"time"

	"CivicGate/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Monitor is a collection of Prometheus metrics for the gateway.
// All methods are safe on a nil receiver so tests can skip metrics.
type Monitor struct {
	// Duration of each downstream engine call, by outcome (ok, error type).
	EngineCallTimer *prometheus.HistogramVec
	// Duration of each pipeline step.
	StepTimer *prometheus.HistogramVec
	// Finished pipeline runs, by result (success, degraded, failed).
	PipelineRunCounter *prometheus.CounterVec
	// Steps that were skipped with a degradation marker.
	DegradedStepCounter *prometheus.CounterVec
	// 0 closed, 1 half_open, 2 open.
	CircuitStateGauge *prometheus.GaugeVec
	// 1 when the last health sweep reached the engine.
	EngineUpGauge *prometheus.GaugeVec
	// Audit writes per sink and result.
	AuditWriteCounter *prometheus.CounterVec
	// Audit records dropped because the queue was full.
	AuditDroppedCounter prometheus.Counter
	// Requests rejected by the rate limiter, by reason.
	RateLimitedCounter *prometheus.CounterVec
}

// NewMetricsRegistry creates the gateway's own registry with runtime collectors.
func NewMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// NewMonitor creates the gateway monitor and registers its metrics.
func NewMonitor(registry *prometheus.Registry) *Monitor {
	engineCallTimer := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "civicgate_engine_call_duration_seconds",
		Help:    "Duration of downstream engine calls",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~41s
	}, []string{"engine", "outcome"})
	stepTimer := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "civicgate_pipeline_step_duration_seconds",
		Help:    "Duration of pipeline steps",
		Buckets: prometheus.DefBuckets,
	}, []string{"pipeline", "step"})
	pipelineRunCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civicgate_pipeline_runs_total",
		Help: "Number of finished pipeline runs",
	}, []string{"pipeline", "result"})
	degradedStepCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civicgate_pipeline_degraded_steps_total",
		Help: "Number of pipeline steps that degraded",
	}, []string{"pipeline", "step"})
	circuitStateGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "civicgate_circuit_state",
		Help: "Circuit breaker state per engine (0 closed, 1 half_open, 2 open)",
	}, []string{"engine"})
	engineUpGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "civicgate_engine_up",
		Help: "Whether the engine answered the last health sweep",
	}, []string{"engine"})
	auditWriteCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civicgate_audit_writes_total",
		Help: "Number of audit writes per sink",
	}, []string{"sink", "result"})
	auditDroppedCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "civicgate_audit_dropped_total",
		Help: "Number of audit records dropped because the queue was full",
	})
	rateLimitedCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civicgate_rate_limited_total",
		Help: "Number of requests rejected by the rate limiter",
	}, []string{"reason"})
	registry.MustRegister(
		engineCallTimer,
		stepTimer,
		pipelineRunCounter,
		degradedStepCounter,
		circuitStateGauge,
		engineUpGauge,
		auditWriteCounter,
		auditDroppedCounter,
		rateLimitedCounter,
	)
	return &Monitor{
		EngineCallTimer:     engineCallTimer,
		StepTimer:           stepTimer,
		PipelineRunCounter:  pipelineRunCounter,
		DegradedStepCounter: degradedStepCounter,
		CircuitStateGauge:   circuitStateGauge,
		EngineUpGauge:       engineUpGauge,
		AuditWriteCounter:   auditWriteCounter,
		AuditDroppedCounter: auditDroppedCounter,
		RateLimitedCounter:  rateLimitedCounter,
	}
}

func (m *Monitor) ObserveEngineCall(engine, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.EngineCallTimer.WithLabelValues(engine, outcome).Observe(d.Seconds())
}

func (m *Monitor) ObserveStep(pipeline, step string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepTimer.WithLabelValues(pipeline, step).Observe(d.Seconds())
}

func (m *Monitor) PipelineFinished(pipeline, result string) {
	if m == nil {
		return
	}
	m.PipelineRunCounter.WithLabelValues(pipeline, result).Inc()
}

func (m *Monitor) StepDegraded(pipeline, step string) {
	if m == nil {
		return
	}
	m.DegradedStepCounter.WithLabelValues(pipeline, step).Inc()
}

func (m *Monitor) SetCircuitState(engine string, state model.CircuitState) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case model.CircuitHalfOpen:
		v = 1
	case model.CircuitOpen:
		v = 2
	}
	m.CircuitStateGauge.WithLabelValues(engine).Set(v)
}

func (m *Monitor) SetEngineUp(engine string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.EngineUpGauge.WithLabelValues(engine).Set(v)
}

func (m *Monitor) AuditWrite(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AuditWriteCounter.WithLabelValues(sink, result).Inc()
}

func (m *Monitor) AuditDropped() {
	if m == nil {
		return
	}
	m.AuditDroppedCounter.Inc()
}

func (m *Monitor) RateLimited(reason string) {
	if m == nil {
		return
	}
	m.RateLimitedCounter.WithLabelValues(reason).Inc()
}
