// Package service implements the HTTP-facing handlers of the gateway.
// Every JSON response, success or failure, is wrapped in Envelope.
package service

import (
	"context"
	"time"

	"CivicGate/internal/biz"
	pkglog "CivicGate/pkg/log"

	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewOrchestratorService, NewSystemService)

// ErrorDetail is one entry of Envelope.Errors.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Envelope is the response wrapper shared by all routes.
type Envelope struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data"`
	Errors    []ErrorDetail `json:"errors,omitempty"`
	TraceID   string        `json:"trace_id"`
	Timestamp string        `json:"timestamp"`
}

// NewEnvelope wraps data with the request's trace id.
func NewEnvelope(ctx context.Context, success bool, message string, data interface{}) *Envelope {
	if message == "" {
		message = "OK"
	}
	return &Envelope{
		Success:   success,
		Message:   message,
		Data:      data,
		TraceID:   pkglog.GetTraceID(ctx),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// fromResult wraps a pipeline result.
func fromResult(ctx context.Context, res *biz.PipelineResult) *Envelope {
	return NewEnvelope(ctx, res.Success, res.Message, res.Data)
}
