package data

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"CivicGate/internal/conf"
	"CivicGate/internal/model"
	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultAuditQueueSize    = 1000
	defaultAuditWorkers      = 4
	defaultAuditWriteTimeout = 15 * time.Second
)

type engineCaller interface {
	Call(ctx context.Context, req *model.EngineRequest) (json.RawMessage, error)
}

// AuditEmitter ships pipeline audit records to the raw data store and the
// analytics warehouse. Emit never blocks the request; workers write with
// their own context so a finished request cannot cancel the write.
type AuditEmitter struct {
	engines      engineCaller
	journal      *EventJournal
	queue        chan *model.AuditRecord
	writeTimeout time.Duration
	monitor      *Monitor
	log          *pkglog.LogHelper

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAuditEmitter creates the emitter and starts its workers.
// The returned cleanup drains the queue.
func NewAuditEmitter(c *conf.Audit, engines *EngineClient, journal *EventJournal, monitor *Monitor, logger log.Logger) (*AuditEmitter, func()) {
	a := newAuditEmitter(c, engines, journal, monitor, logger)
	return a, a.Close
}

func newAuditEmitter(c *conf.Audit, engines engineCaller, journal *EventJournal, monitor *Monitor, logger log.Logger) *AuditEmitter {
	queueSize := defaultAuditQueueSize
	workers := defaultAuditWorkers
	writeTimeout := defaultAuditWriteTimeout
	if c != nil {
		if c.QueueSize > 0 {
			queueSize = int(c.QueueSize)
		}
		if c.Workers > 0 {
			workers = int(c.Workers)
		}
		if d := c.WriteTimeout.AsDuration(); d > 0 {
			writeTimeout = d
		}
	}

	a := &AuditEmitter{
		engines:      engines,
		journal:      journal,
		queue:        make(chan *model.AuditRecord, queueSize),
		writeTimeout: writeTimeout,
		monitor:      monitor,
		log:          pkglog.NewLogHelper(logger),
	}

	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.start()
	}
	return a
}

func (a *AuditEmitter) start() {
	defer a.wg.Done()
	for record := range a.queue {
		a.write(record)
	}
}

// Emit queues one record and returns immediately.
func (a *AuditEmitter) Emit(ctx context.Context, record *model.AuditRecord) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.RequestID == "" && pkglog.HasRequestContext(ctx) {
		record.RequestID = pkglog.GetTraceID(ctx)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.log.Warnw("msg", "audit emitter closed, dropping event",
			"event_type", record.EventType,
			"trace_id", record.RequestID,
			"type", "audit")
		a.monitor.AuditDropped()
		return
	}

	select {
	case a.queue <- record:
	default:
		a.log.Warnw("msg", "audit queue full, dropping event",
			"event_type", record.EventType,
			"trace_id", record.RequestID,
			"type", "audit")
		a.monitor.AuditDropped()
	}
}

// write performs the two sink writes; each failure is logged and dropped on its own.
func (a *AuditEmitter) write(record *model.AuditRecord) {
	userID := record.UserID
	payload := record.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}

	a.send(record, "raw_data", &model.EngineRequest{
		Engine: model.EngineRawDataStore,
		Path:   "/raw-data/events",
		Method: "POST",
		Payload: map[string]interface{}{
			"event_type":    record.EventType.String(),
			"source_engine": model.AuditSourceEngine,
			"user_id":       userID,
			"payload":       payload,
		},
		RequestID: record.RequestID,
	})

	a.send(record, "analytics", &model.EngineRequest{
		Engine: model.EngineAnalyticsWarehouse,
		Path:   "/analytics/event",
		Method: "POST",
		Payload: map[string]interface{}{
			"event_type": record.EventType.String(),
			"user_id":    userID,
			"properties": payload,
		},
		RequestID: record.RequestID,
	})

	if a.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
		if err := a.journal.Append(ctx, record); err != nil {
			a.log.Warnw("msg", "failed to journal audit event", "event_type", record.EventType, "error", err)
		}
		cancel()
	}
}

func (a *AuditEmitter) send(record *model.AuditRecord, sink string, req *model.EngineRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
	defer cancel()

	_, err := a.engines.Call(ctx, req)
	a.monitor.AuditWrite(sink, err)
	if err != nil {
		a.log.Warnw("msg", "audit write failed",
			"sink", sink,
			"event_type", record.EventType,
			"trace_id", record.RequestID,
			"error", err,
			"type", "audit")
		return
	}
	a.log.Debugw("msg", "audit event written",
		"sink", sink,
		"event_type", record.EventType,
		"trace_id", record.RequestID)
}

// Close stops accepting records and waits for queued ones to be written.
func (a *AuditEmitter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.log.Audit("draining audit queue", "pending", len(a.queue))
	a.wg.Wait()
}
