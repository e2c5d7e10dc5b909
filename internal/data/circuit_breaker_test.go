package data

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"CivicGate/internal/conf"
	"CivicGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingListener struct {
	mu        sync.Mutex
	opened    []*model.CircuitOpenedEvent
	recovered []*model.CircuitRecoveredEvent
}

func (l *recordingListener) CircuitOpened(_ context.Context, e *model.CircuitOpenedEvent) {
	l.mu.Lock()
	l.opened = append(l.opened, e)
	l.mu.Unlock()
}

func (l *recordingListener) CircuitRecovered(_ context.Context, e *model.CircuitRecoveredEvent) {
	l.mu.Lock()
	l.recovered = append(l.recovered, e)
	l.mu.Unlock()
}

func newTestRegistry(t *testing.T, threshold int32, recovery time.Duration) (*CircuitBreakerRegistry, *fakeClock, *recordingListener) {
	t.Helper()
	clock := newFakeClock()
	listener := &recordingListener{}
	r := NewCircuitBreakerRegistry(&conf.CircuitBreaker{
		FailureThreshold: threshold,
		RecoveryTimeout:  durationpb.New(recovery),
	}, listener, log.NewStdLogger(os.Stdout))
	r.now = clock.Now
	return r, clock, listener
}

func TestCircuitBreaker_InitiallyClosed(t *testing.T) {
	r, _, _ := newTestRegistry(t, 5, 30*time.Second)

	assert.True(t, r.AllowRequest("identity"))
	assert.Equal(t, model.CircuitStatus{State: model.CircuitClosed, Failures: 0}, r.Status()["identity"])
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	r, _, listener := newTestRegistry(t, 5, 30*time.Second)

	for i := 0; i < 4; i++ {
		r.RecordFailure("X")
		assert.True(t, r.AllowRequest("X"), "still closed after %d failures", i+1)
	}
	r.RecordFailure("X")

	assert.False(t, r.AllowRequest("X"))
	status := r.Status()["X"]
	assert.Equal(t, model.CircuitOpen, status.State)
	assert.GreaterOrEqual(t, status.Failures, r.Threshold())
	require.Len(t, listener.opened, 1)
	assert.Equal(t, 5, listener.opened[0].Failures)
	assert.False(t, listener.opened[0].Reopened)
}

// Five failures, 31s later one probe, failed probe reopens immediately.
func TestCircuitBreaker_RecoveryScenario(t *testing.T) {
	r, clock, listener := newTestRegistry(t, 5, 30*time.Second)

	for i := 0; i < 5; i++ {
		r.RecordFailure("X")
	}
	assert.False(t, r.AllowRequest("X"))

	clock.Advance(29 * time.Second)
	assert.False(t, r.AllowRequest("X"))

	clock.Advance(2 * time.Second)
	assert.True(t, r.AllowRequest("X"), "probe admitted after recovery timeout")
	assert.False(t, r.AllowRequest("X"), "only one probe while half-open")
	assert.Equal(t, model.CircuitHalfOpen, r.Status()["X"].State)

	r.RecordFailure("X")
	assert.False(t, r.AllowRequest("X"), "failed probe reopens immediately")
	assert.Equal(t, model.CircuitOpen, r.Status()["X"].State)
	require.Len(t, listener.opened, 2)
	assert.True(t, listener.opened[1].Reopened)

	clock.Advance(29 * time.Second)
	assert.False(t, r.AllowRequest("X"), "new window counts from the probe failure")

	clock.Advance(2 * time.Second)
	assert.True(t, r.AllowRequest("X"))
	r.RecordSuccess("X")

	assert.True(t, r.AllowRequest("X"))
	assert.True(t, r.AllowRequest("X"))
	assert.Equal(t, model.CircuitStatus{State: model.CircuitClosed, Failures: 0}, r.Status()["X"])
	require.Len(t, listener.recovered, 1)
	assert.Equal(t, "X", listener.recovered[0].Engine)
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	r, _, _ := newTestRegistry(t, 3, 30*time.Second)

	r.RecordFailure("X")
	r.RecordFailure("X")
	r.RecordSuccess("X")
	r.RecordFailure("X")
	r.RecordFailure("X")

	assert.True(t, r.AllowRequest("X"))
	assert.Equal(t, 2, r.Status()["X"].Failures)
}

func TestCircuitBreaker_SuccessForcesClosedFromOpen(t *testing.T) {
	r, _, listener := newTestRegistry(t, 1, time.Minute)

	r.RecordFailure("X")
	assert.False(t, r.AllowRequest("X"))

	r.RecordSuccess("X")
	assert.True(t, r.AllowRequest("X"))
	assert.Len(t, listener.recovered, 1)
}

func TestCircuitBreaker_StatusDoesNotTransition(t *testing.T) {
	r, clock, _ := newTestRegistry(t, 1, 10*time.Second)

	r.RecordFailure("X")
	clock.Advance(11 * time.Second)

	assert.Equal(t, model.CircuitHalfOpen, r.Status()["X"].State)
	// The snapshot did not consume the probe.
	assert.True(t, r.AllowRequest("X"))
	assert.False(t, r.AllowRequest("X"))
}

func TestCircuitBreaker_LostProbeIsReplaced(t *testing.T) {
	r, clock, _ := newTestRegistry(t, 1, 10*time.Second)

	r.RecordFailure("X")
	clock.Advance(11 * time.Second)
	assert.True(t, r.AllowRequest("X"))

	clock.Advance(5 * time.Second)
	assert.False(t, r.AllowRequest("X"))

	clock.Advance(6 * time.Second)
	assert.True(t, r.AllowRequest("X"), "a probe that never reported is replaced after the recovery window")
}

func TestCircuitBreaker_IsolatedPerEngine(t *testing.T) {
	r, _, _ := newTestRegistry(t, 2, time.Minute)

	r.RecordFailure("a")
	r.RecordFailure("a")

	assert.False(t, r.AllowRequest("a"))
	assert.True(t, r.AllowRequest("b"))
	assert.Len(t, r.Status(), 2)
}

func TestCircuitBreaker_ConcurrentFailures(t *testing.T) {
	r, _, listener := newTestRegistry(t, 50, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordFailure("X")
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, r.Status()["X"].Failures)
	assert.Equal(t, model.CircuitOpen, r.Status()["X"].State)
	assert.Len(t, listener.opened, 1, "threshold crossing is reported once")
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	r := NewCircuitBreakerRegistry(nil, nil, log.NewStdLogger(os.Stdout))
	assert.Equal(t, 5, r.Threshold())

	for i := 0; i < 5; i++ {
		r.RecordFailure(fmt.Sprintf("engine-%d", i%1))
	}
	assert.False(t, r.AllowRequest("engine-0"))
}
