package data

import (
	"context"
	"sync"
	"time"

	"CivicGate/internal/conf"
	"CivicGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 30 * time.Second
)

// CircuitListener is told about state transitions, outside the registry lock.
type CircuitListener interface {
	CircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent)
	CircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent)
}

// circuit is the per-engine record. Created lazily, never persisted.
type circuit struct {
	state       model.CircuitState
	failures    int
	lastFailure time.Time
	openedAt    time.Time
	// half_open 只放行一个探测请求
	probeInFlight bool
	probeStarted  time.Time
}

// CircuitBreakerRegistry tracks consecutive transport failures per engine key.
//
//	closed --(failures >= threshold)--> open
//	open --(now - lastFailure > recovery, on next AllowRequest)--> half_open
//	half_open --(probe success)--> closed
//	half_open --(probe failure)--> open
type CircuitBreakerRegistry struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	recovery  time.Duration
	now       func() time.Time
	listener  CircuitListener
	logger    *log.Helper
}

// NewCircuitBreakerRegistry creates the process-wide registry.
func NewCircuitBreakerRegistry(c *conf.CircuitBreaker, listener CircuitListener, logger log.Logger) *CircuitBreakerRegistry {
	threshold := defaultFailureThreshold
	recovery := defaultRecoveryTimeout
	if c != nil {
		if c.FailureThreshold > 0 {
			threshold = int(c.FailureThreshold)
		}
		if d := c.RecoveryTimeout.AsDuration(); d > 0 {
			recovery = d
		}
	}
	return &CircuitBreakerRegistry{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		recovery:  recovery,
		now:       time.Now,
		listener:  listener,
		logger:    log.NewHelper(logger),
	}
}

// get must be called with mu held.
func (r *CircuitBreakerRegistry) get(engine string) *circuit {
	c, ok := r.circuits[engine]
	if !ok {
		c = &circuit{state: model.CircuitClosed}
		r.circuits[engine] = c
	}
	return c
}

// AllowRequest reports whether a call to engine may proceed.
// An open circuit whose recovery window has elapsed moves to half_open and
// admits exactly one probe; later callers are rejected until the probe reports.
func (r *CircuitBreakerRegistry) AllowRequest(engine string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.get(engine)
	now := r.now()

	switch c.state {
	case model.CircuitClosed:
		return true
	case model.CircuitOpen:
		if now.Sub(c.lastFailure) <= r.recovery {
			return false
		}
		c.state = model.CircuitHalfOpen
		c.probeInFlight = true
		c.probeStarted = now
		r.logger.Infow("msg", "circuit half-open, sending probe", "engine", engine, "failures", c.failures)
		return true
	case model.CircuitHalfOpen:
		// 探测请求丢失结果（调用方取消）时，超过恢复窗口后允许新的探测
		if c.probeInFlight && now.Sub(c.probeStarted) <= r.recovery {
			return false
		}
		c.probeInFlight = true
		c.probeStarted = now
		return true
	}
	return false
}

// RecordSuccess resets the failure counter and closes the circuit.
func (r *CircuitBreakerRegistry) RecordSuccess(engine string) {
	r.mu.Lock()
	c := r.get(engine)
	now := r.now()

	var event *model.CircuitRecoveredEvent
	if c.state != model.CircuitClosed {
		event = &model.CircuitRecoveredEvent{
			Engine:      engine,
			RecoverTime: now.Sub(c.openedAt),
			RecoveredAt: now,
		}
	}
	c.state = model.CircuitClosed
	c.failures = 0
	c.probeInFlight = false
	r.mu.Unlock()

	if event != nil {
		r.logger.Infow("msg", "circuit closed", "engine", engine, "recover_time", event.RecoverTime)
		if r.listener != nil {
			r.listener.CircuitRecovered(context.Background(), event)
		}
	}
}

// RecordFailure counts one transport failure and may open the circuit.
func (r *CircuitBreakerRegistry) RecordFailure(engine string) {
	r.mu.Lock()
	c := r.get(engine)
	now := r.now()

	c.failures++
	c.lastFailure = now

	var event *model.CircuitOpenedEvent
	switch c.state {
	case model.CircuitHalfOpen:
		// 探测失败，重新打开，恢复窗口从本次失败重新计时
		c.state = model.CircuitOpen
		c.probeInFlight = false
		event = &model.CircuitOpenedEvent{Engine: engine, Failures: c.failures, OpenedAt: now, Reopened: true}
	case model.CircuitClosed:
		if c.failures >= r.threshold {
			c.state = model.CircuitOpen
			c.openedAt = now
			event = &model.CircuitOpenedEvent{Engine: engine, Failures: c.failures, OpenedAt: now}
		}
	}
	r.mu.Unlock()

	if event != nil {
		r.logger.Warnw("msg", "circuit OPEN",
			"engine", engine,
			"failures", event.Failures,
			"reopened", event.Reopened,
			"recovery_timeout", r.recovery)
		if r.listener != nil {
			r.listener.CircuitOpened(context.Background(), event)
		}
	}
}

// Status returns a snapshot of every engine seen so far.
// It reports the effective state (an expired open circuit shows as half_open)
// without performing the transition.
func (r *CircuitBreakerRegistry) Status() map[string]model.CircuitStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make(map[string]model.CircuitStatus, len(r.circuits))
	for engine, c := range r.circuits {
		state := c.state
		if state == model.CircuitOpen && now.Sub(c.lastFailure) > r.recovery {
			state = model.CircuitHalfOpen
		}
		out[engine] = model.CircuitStatus{State: state, Failures: c.failures}
	}
	return out
}

// Threshold returns the configured failure threshold.
func (r *CircuitBreakerRegistry) Threshold() int {
	return r.threshold
}
