package biz

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"CivicGate/internal/conf"
	"CivicGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

type fakeProber struct {
	engines []string
	healthy map[string]bool
	mu      sync.Mutex
	probed  []string
	timeout time.Duration
}

func (p *fakeProber) Engines() []string { return p.engines }

func (p *fakeProber) Probe(_ context.Context, engine string, timeout time.Duration) *model.EngineHealth {
	p.mu.Lock()
	p.probed = append(p.probed, engine)
	p.timeout = timeout
	p.mu.Unlock()
	h := &model.EngineHealth{Engine: engine, Status: model.EngineUnreachable, Port: "80"}
	if p.healthy[engine] {
		uptime := 12.5
		h.Status = model.EngineHealthy
		h.Uptime = &uptime
	}
	return h
}

// MockJournal is a mock implementation of EventJournal for testing.
type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) Recent(ctx context.Context, n int) ([]*model.AuditRecord, error) {
	args := m.Called(ctx, n)
	return args.Get(0).([]*model.AuditRecord), args.Error(1)
}

type staticCircuits map[string]model.CircuitStatus

func (s staticCircuits) Status() map[string]model.CircuitStatus { return s }

type recordingMetrics struct {
	noopMetrics
	mu sync.Mutex
	up map[string]bool
}

func (m *recordingMetrics) SetEngineUp(engine string, up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.up[engine] = up
}

func newTestSystem(prober *fakeProber, journal EventJournal, metrics Metrics) *SystemUsecase {
	return NewSystemUsecase(nil, prober, staticCircuits{
		model.EngineSimulation: {State: model.CircuitOpen, Failures: 5},
	}, journal, metrics, log.NewStdLogger(os.Stdout))
}

func TestEnginesHealth_SkipsGatewayAndSorts(t *testing.T) {
	prober := &fakeProber{
		engines: []string{model.EngineTrustScoring, model.EngineAPIGateway, model.EngineChunks, model.EngineIdentity},
		healthy: map[string]bool{model.EngineChunks: true, model.EngineIdentity: true},
	}
	uc := newTestSystem(prober, nil, nil)

	report := uc.EnginesHealth(context.Background())
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Healthy)
	assert.Equal(t, 1, report.Unhealthy)
	require.Len(t, report.Engines, 3)
	assert.Equal(t, model.EngineChunks, report.Engines[0].Engine)
	assert.Equal(t, model.EngineIdentity, report.Engines[1].Engine)
	assert.Equal(t, model.EngineTrustScoring, report.Engines[2].Engine)
	assert.Nil(t, report.Engines[2].Uptime)
	assert.NotContains(t, prober.probed, model.EngineAPIGateway)
	assert.Equal(t, 5*time.Second, prober.timeout)
}

func TestEnginesHealth_ConfiguredTimeout(t *testing.T) {
	prober := &fakeProber{engines: []string{model.EngineChunks}}
	uc := NewSystemUsecase(&conf.Health{ProbeTimeout: durationpb.New(2 * time.Second)}, prober, staticCircuits{}, nil, nil, log.NewStdLogger(os.Stdout))

	uc.EnginesHealth(context.Background())
	assert.Equal(t, 2*time.Second, prober.timeout)
}

func TestSweep_PublishesEngineUp(t *testing.T) {
	prober := &fakeProber{
		engines: []string{model.EngineChunks, model.EngineIdentity},
		healthy: map[string]bool{model.EngineChunks: true},
	}
	metrics := &recordingMetrics{up: map[string]bool{}}
	uc := newTestSystem(prober, nil, metrics)

	report := uc.Sweep(context.Background())
	assert.Equal(t, 1, report.Healthy)
	assert.Equal(t, map[string]bool{model.EngineChunks: true, model.EngineIdentity: false}, metrics.up)
}

func TestCircuitStatus(t *testing.T) {
	uc := newTestSystem(&fakeProber{}, nil, nil)
	status := uc.CircuitStatus()
	assert.Equal(t, model.CircuitOpen, status[model.EngineSimulation].State)
}

func TestRecentEvents_ClampsLimit(t *testing.T) {
	journal := new(MockJournal)
	uc := newTestSystem(&fakeProber{}, journal, nil)
	ctx := context.Background()
	records := []*model.AuditRecord{{EventType: model.AuditEventRAGQuery}}

	journal.On("Recent", ctx, 50).Return(records, nil).Once()
	journal.On("Recent", ctx, 200).Return(records, nil).Once()
	journal.On("Recent", ctx, 7).Return(records, nil).Once()

	got, err := uc.RecentEvents(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, records, got)
	_, err = uc.RecentEvents(ctx, 1000)
	require.NoError(t, err)
	_, err = uc.RecentEvents(ctx, 7)
	require.NoError(t, err)
	journal.AssertExpectations(t)
}

func TestEngineCount(t *testing.T) {
	uc := newTestSystem(&fakeProber{engines: []string{model.EngineAPIGateway, model.EngineChunks}}, nil, nil)
	assert.Equal(t, 2, uc.EngineCount())
}
