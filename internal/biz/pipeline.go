package biz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CivicGate/internal/model"
	apperrors "CivicGate/pkg/errors"
	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// Per-call timeouts. Zero falls back to the engine client's default (15s).
const (
	generationTimeout = 20 * time.Second
	embeddingTimeout  = 20 * time.Second
	parseTimeout      = 25 * time.Second
	fetchTimeout      = 30 * time.Second
	summarizeTimeout  = 15 * time.Second
)

// Pipeline run results, used as metric labels.
const (
	resultSuccess  = "success"
	resultDegraded = "degraded"
	resultFailed   = "failed"
)

// Step is one downstream call of a pipeline.
// Name doubles as the degradation marker when the step is optional.
type Step struct {
	Name    string
	Engine  string
	Path    string
	Method  string
	Payload interface{}
	Timeout time.Duration
}

// PipelineContext is the request-local state of one pipeline run.
// degraded only grows; parallel branches get their own copy that is merged
// back in declaration order once the group settles.
type PipelineContext struct {
	Pipeline      string
	TraceID       string
	Authorization string
	StartedAt     time.Time

	x        *Executor
	degraded []string
}

// Degrade appends a marker once.
func (pc *PipelineContext) Degrade(step string) {
	for _, s := range pc.degraded {
		if s == step {
			return
		}
	}
	pc.degraded = append(pc.degraded, step)
}

// MarkDegraded records a degradation with its cause.
func (pc *PipelineContext) MarkDegraded(step string, cause error) {
	pc.Degrade(step)
	pc.x.metrics.StepDegraded(pc.Pipeline, step)
	pc.x.log.Degraded(pkglog.WithRequestContext(context.Background(), pc.TraceID, ""), pc.Pipeline, step, cause)
}

// Degraded returns the markers, or nil when nothing degraded.
func (pc *PipelineContext) Degraded() []string {
	if len(pc.degraded) == 0 {
		return nil
	}
	out := make([]string, len(pc.degraded))
	copy(out, pc.degraded)
	return out
}

// IsDegraded reports whether any step degraded.
func (pc *PipelineContext) IsDegraded() bool {
	return len(pc.degraded) > 0
}

func (pc *PipelineContext) branch() *PipelineContext {
	return &PipelineContext{
		Pipeline:      pc.Pipeline,
		TraceID:       pc.TraceID,
		Authorization: pc.Authorization,
		StartedAt:     pc.StartedAt,
		x:             pc.x,
	}
}

// PipelineResult is what a pipeline hands back to the service layer.
type PipelineResult struct {
	Success bool
	Message string
	Data    interface{}
}

// PipelineError aborts a pipeline after a critical step failed.
// Status mirrors the failing step's status when it has one.
type PipelineError struct {
	Status  int
	Message string
	Data    interface{}
	Err     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return e.Message
}

// Unwrap returns the failing step's error.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Executor runs pipeline steps against the engines.
type Executor struct {
	engines EngineCaller
	audit   AuditEmitter
	metrics Metrics
	log     *pkglog.LogHelper
}

// NewExecutor creates a new step executor.
func NewExecutor(engines EngineCaller, audit AuditEmitter, metrics Metrics, logger log.Logger) *Executor {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Executor{
		engines: engines,
		audit:   audit,
		metrics: metrics,
		log:     pkglog.NewLogHelper(logger),
	}
}

// Begin starts a pipeline run bound to the request's trace id.
func (x *Executor) Begin(ctx context.Context, pipeline string) *PipelineContext {
	traceID := ""
	if pkglog.HasRequestContext(ctx) {
		traceID = pkglog.GetTraceID(ctx)
	}
	if traceID == "" {
		traceID = pkglog.GenerateTraceID()
	}
	return &PipelineContext{
		Pipeline:      pipeline,
		TraceID:       traceID,
		Authorization: AuthorizationFrom(ctx),
		StartedAt:     time.Now(),
		x:             x,
	}
}

// Finish logs the run and records its result.
func (x *Executor) Finish(ctx context.Context, pc *PipelineContext, success bool) {
	result := resultSuccess
	switch {
	case !success:
		result = resultFailed
	case pc.IsDegraded():
		result = resultDegraded
	}
	x.metrics.PipelineFinished(pc.Pipeline, result)
	x.log.Pipeline(ctx, pc.Pipeline, success, pc.Degraded(), time.Since(pc.StartedAt))
}

// Parallel runs the branches concurrently and waits for all of them.
// A failing branch never cancels another.
func (x *Executor) Parallel(pc *PipelineContext, branches ...func(branch *PipelineContext)) {
	scratch := make([]*PipelineContext, len(branches))
	var g errgroup.Group
	for i, fn := range branches {
		i, fn := i, fn
		scratch[i] = pc.branch()
		g.Go(func() error {
			fn(scratch[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, b := range scratch {
		for _, step := range b.degraded {
			pc.Degrade(step)
		}
	}
}

// Audit emits the pipeline's audit record under its trace id.
func (x *Executor) Audit(ctx context.Context, pc *PipelineContext, eventType model.AuditEventType, userID string, payload map[string]interface{}) {
	x.audit.Emit(ctx, &model.AuditRecord{
		EventType: eventType,
		UserID:    userID,
		Payload:   payload,
		RequestID: pc.TraceID,
		CreatedAt: time.Now(),
	})
}

// Outcome is the typed result of one step: a value or the failure.
type Outcome[T any] struct {
	Value T
	Err   error

	step string
	pc   *PipelineContext
}

// OK reports whether the step succeeded.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// OrDegrade returns the value, or def after marking the step degraded.
func (o Outcome[T]) OrDegrade(def T) T {
	if o.Err == nil {
		return o.Value
	}
	o.pc.MarkDegraded(o.step, o.Err)
	return def
}

// OrAbort returns the value, or a PipelineError carrying the step's status
// (fallback when the failure has none).
func (o Outcome[T]) OrAbort(prefix string, fallbackStatus int) (T, error) {
	if o.Err == nil {
		return o.Value, nil
	}
	return o.Value, &PipelineError{
		Status:  apperrors.StatusOf(o.Err, fallbackStatus),
		Message: prefix + apperrors.DetailOf(o.Err),
		Err:     o.Err,
	}
}

// Run executes one step and decodes its JSON result into T.
// A null body yields the zero T.
func Run[T any](ctx context.Context, pc *PipelineContext, s Step) Outcome[T] {
	out := Outcome[T]{step: s.Name, pc: pc}
	method := s.Method
	if method == "" {
		method = "POST"
	}

	start := time.Now()
	raw, err := pc.x.engines.Call(ctx, &model.EngineRequest{
		Engine:        s.Engine,
		Path:          s.Path,
		Method:        method,
		Payload:       s.Payload,
		RequestID:     pc.TraceID,
		Authorization: pc.Authorization,
		Timeout:       s.Timeout,
	})
	pc.x.metrics.ObserveStep(pc.Pipeline, s.Name, time.Since(start))
	if err != nil {
		out.Err = err
		return out
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out
	}
	if err := json.Unmarshal(raw, &out.Value); err != nil {
		out.Err = apperrors.NewProtocolError(s.Engine, fmt.Errorf("unexpected %s%s response shape: %w", s.Engine, s.Path, err))
	}
	return out
}
