package data

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"CivicGate/internal/conf"
	"CivicGate/internal/model"
	apperrors "CivicGate/pkg/errors"
	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCaller struct {
	mu      sync.Mutex
	calls   []*model.EngineRequest
	failFor map[string]error
	block   chan struct{}
}

func (c *recordingCaller) Call(ctx context.Context, req *model.EngineRequest) (json.RawMessage, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	if err := c.failFor[req.Engine]; err != nil {
		return nil, err
	}
	return json.RawMessage(`{}`), nil
}

func (c *recordingCaller) byEngine(engine string) []*model.EngineRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*model.EngineRequest
	for _, call := range c.calls {
		if call.Engine == engine {
			out = append(out, call)
		}
	}
	return out
}

func TestAuditEmitter_WritesBothSinks(t *testing.T) {
	caller := &recordingCaller{}
	logger := log.NewStdLogger(os.Stdout)
	journal := NewEventJournal(nil, nil, logger)
	emitter := newAuditEmitter(&conf.Audit{Workers: 2}, caller, journal, nil, logger)

	ctx := pkglog.WithRequestContext(context.Background(), "trace-42", "")
	emitter.Emit(ctx, &model.AuditRecord{
		EventType: model.AuditEventRAGQuery,
		UserID:    "u1",
		Payload:   map[string]interface{}{"query": "pm kisan"},
	})
	emitter.Close()

	raw := caller.byEngine(model.EngineRawDataStore)
	require.Len(t, raw, 1)
	assert.Equal(t, "/raw-data/events", raw[0].Path)
	assert.Equal(t, "trace-42", raw[0].RequestID)
	body := raw[0].Payload.(map[string]interface{})
	assert.Equal(t, "RAG_QUERY", body["event_type"])
	assert.Equal(t, "orchestrator", body["source_engine"])
	assert.Equal(t, "u1", body["user_id"])

	analytics := caller.byEngine(model.EngineAnalyticsWarehouse)
	require.Len(t, analytics, 1)
	assert.Equal(t, "/analytics/event", analytics[0].Path)
	props := analytics[0].Payload.(map[string]interface{})["properties"].(map[string]interface{})
	assert.Equal(t, "pm kisan", props["query"])

	recent, err := journal.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "trace-42", recent[0].RequestID)
}

func TestAuditEmitter_SinkFailuresAreIndependent(t *testing.T) {
	caller := &recordingCaller{failFor: map[string]error{
		model.EngineRawDataStore: apperrors.NewConnectionError(model.EngineRawDataStore, errors.New("refused")),
	}}
	emitter := newAuditEmitter(nil, caller, nil, nil, log.NewStdLogger(os.Stdout))

	emitter.Emit(context.Background(), &model.AuditRecord{EventType: model.AuditEventSimulationRun, UserID: "u1"})
	emitter.Close()

	assert.Len(t, caller.byEngine(model.EngineRawDataStore), 1)
	assert.Len(t, caller.byEngine(model.EngineAnalyticsWarehouse), 1, "analytics still written when raw store fails")
}

func TestAuditEmitter_EmitDoesNotBlock(t *testing.T) {
	caller := &recordingCaller{block: make(chan struct{})}
	emitter := newAuditEmitter(&conf.Audit{QueueSize: 1, Workers: 1}, caller, nil, nil, log.NewStdLogger(os.Stdout))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			emitter.Emit(context.Background(), &model.AuditRecord{EventType: model.AuditEventVoiceQuery})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a stalled sink")
	}

	close(caller.block)
	emitter.Close()
	assert.LessOrEqual(t, len(caller.byEngine(model.EngineRawDataStore)), 2, "overflow records are dropped")
}

func TestAuditEmitter_EmitAfterClose(t *testing.T) {
	caller := &recordingCaller{}
	emitter := newAuditEmitter(nil, caller, nil, nil, log.NewStdLogger(os.Stdout))
	emitter.Close()
	emitter.Close()

	emitter.Emit(context.Background(), &model.AuditRecord{EventType: model.AuditEventVoiceQuery})
	assert.Empty(t, caller.byEngine(model.EngineRawDataStore))
}
