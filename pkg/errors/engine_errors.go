// Package errors provides downstream engine error classification.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// EngineErrorType represents the failure category of one engine call.
type EngineErrorType int

const (
	// ErrorTypeUnknown represents an unclassified failure.
	ErrorTypeUnknown EngineErrorType = iota
	// ErrorTypeConfiguration represents an engine key with no configured URL.
	ErrorTypeConfiguration
	// ErrorTypeCircuitOpen represents a call rejected by an open circuit.
	ErrorTypeCircuitOpen
	// ErrorTypeConnection represents a refused or unreachable connection.
	ErrorTypeConnection
	// ErrorTypeTimeout represents a call that exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeApplication represents a 4xx/5xx reply from a reachable engine.
	ErrorTypeApplication
	// ErrorTypeProtocol represents any other transport or decoding failure.
	ErrorTypeProtocol
	// ErrorTypeCanceled represents a call abandoned because the caller went away.
	ErrorTypeCanceled
)

// StatusClientClosedRequest is reported for calls abandoned by the inbound client.
const StatusClientClosedRequest = 499

func (t EngineErrorType) String() string {
	switch t {
	case ErrorTypeConfiguration:
		return "configuration"
	case ErrorTypeCircuitOpen:
		return "circuit_open"
	case ErrorTypeConnection:
		return "connection"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeApplication:
		return "application"
	case ErrorTypeProtocol:
		return "protocol"
	case ErrorTypeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// EngineCallError describes why one downstream call failed.
// Status is 0 for configuration errors and the HTTP status otherwise.
type EngineCallError struct {
	Engine      string
	Type        EngineErrorType
	Status      int
	Detail      string
	OriginalErr error
}

// Error implements the error interface.
func (e *EngineCallError) Error() string {
	return fmt.Sprintf("[%s] %d: %s", e.Engine, e.Status, e.Detail)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *EngineCallError) Unwrap() error {
	return e.OriginalErr
}

// TripsBreaker reports whether the failure counts against the engine's circuit.
// Only availability failures do; a reachable engine answering 4xx/5xx does not.
func (e *EngineCallError) TripsBreaker() bool {
	switch e.Type {
	case ErrorTypeConnection, ErrorTypeTimeout, ErrorTypeProtocol:
		return true
	default:
		return false
	}
}

func NewConfigurationError(engine string) *EngineCallError {
	return &EngineCallError{
		Engine: engine,
		Type:   ErrorTypeConfiguration,
		Status: 0,
		Detail: fmt.Sprintf("unknown engine key: %s", engine),
	}
}

func NewCircuitOpenError(engine string) *EngineCallError {
	return &EngineCallError{
		Engine: engine,
		Type:   ErrorTypeCircuitOpen,
		Status: 503,
		Detail: fmt.Sprintf("circuit breaker open for %s, engine is temporarily unavailable", engine),
	}
}

func NewConnectionError(engine string, err error) *EngineCallError {
	return &EngineCallError{
		Engine:      engine,
		Type:        ErrorTypeConnection,
		Status:      503,
		Detail:      fmt.Sprintf("engine %s is not responding", engine),
		OriginalErr: err,
	}
}

func NewTimeoutError(engine string, timeout time.Duration, err error) *EngineCallError {
	return &EngineCallError{
		Engine:      engine,
		Type:        ErrorTypeTimeout,
		Status:      504,
		Detail:      fmt.Sprintf("engine %s timed out (%s)", engine, timeout),
		OriginalErr: err,
	}
}

func NewApplicationError(engine string, status int, body string) *EngineCallError {
	return &EngineCallError{
		Engine: engine,
		Type:   ErrorTypeApplication,
		Status: status,
		Detail: body,
	}
}

func NewProtocolError(engine string, err error) *EngineCallError {
	return &EngineCallError{
		Engine:      engine,
		Type:        ErrorTypeProtocol,
		Status:      502,
		Detail:      err.Error(),
		OriginalErr: err,
	}
}

func NewCanceledError(engine string, err error) *EngineCallError {
	return &EngineCallError{
		Engine:      engine,
		Type:        ErrorTypeCanceled,
		Status:      StatusClientClosedRequest,
		Detail:      fmt.Sprintf("call to %s canceled by caller", engine),
		OriginalErr: err,
	}
}

// ClassifyTransportError maps an http.Client error to an EngineCallError.
//
//   - context.DeadlineExceeded / net timeouts → ErrorTypeTimeout (504)
//   - context.Canceled → ErrorTypeCanceled (499, never trips the breaker)
//   - dial failures, ECONNREFUSED, unknown host → ErrorTypeConnection (503)
//   - anything else → ErrorTypeProtocol (502)
func ClassifyTransportError(engine string, timeout time.Duration, err error) *EngineCallError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(engine, timeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewCanceledError(engine, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(engine, timeout, err)
	}

	if isConnectionError(err) {
		return NewConnectionError(engine, err)
	}

	return NewProtocolError(engine, err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{"connection refused", "no such host", "connection reset", "dial tcp", "socks connect"} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}

// AsEngineCallError extracts an EngineCallError from an error chain.
func AsEngineCallError(err error) (*EngineCallError, bool) {
	var callErr *EngineCallError
	if errors.As(err, &callErr) {
		return callErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, or fallback when the error
// has none (configuration errors, non-engine errors).
func StatusOf(err error, fallback int) int {
	if callErr, ok := AsEngineCallError(err); ok && callErr.Status >= 400 {
		return callErr.Status
	}
	return fallback
}

// DetailOf returns the human readable part of an engine failure.
func DetailOf(err error) string {
	if callErr, ok := AsEngineCallError(err); ok {
		return callErr.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsCircuitOpen checks if the call was rejected by an open circuit.
func IsCircuitOpen(err error) bool {
	callErr, ok := AsEngineCallError(err)
	return ok && callErr.Type == ErrorTypeCircuitOpen
}

// IsTimeout checks if the call timed out.
func IsTimeout(err error) bool {
	callErr, ok := AsEngineCallError(err)
	return ok && callErr.Type == ErrorTypeTimeout
}
