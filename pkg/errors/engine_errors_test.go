package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   EngineErrorType
		wantStatus int
		trips      bool
	}{
		{
			name:       "deadline exceeded",
			err:        &url.Error{Op: "Post", URL: "http://x", Err: context.DeadlineExceeded},
			wantType:   ErrorTypeTimeout,
			wantStatus: 504,
			trips:      true,
		},
		{
			name:       "net timeout",
			err:        &url.Error{Op: "Post", URL: "http://x", Err: timeoutErr{}},
			wantType:   ErrorTypeTimeout,
			wantStatus: 504,
			trips:      true,
		},
		{
			name:       "connection refused",
			err:        &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}},
			wantType:   ErrorTypeConnection,
			wantStatus: 503,
			trips:      true,
		},
		{
			name:       "unknown host",
			err:        &url.Error{Op: "Get", URL: "http://x", Err: &net.DNSError{Err: "no such host", Name: "x"}},
			wantType:   ErrorTypeConnection,
			wantStatus: 503,
			trips:      true,
		},
		{
			name:       "canceled",
			err:        &url.Error{Op: "Post", URL: "http://x", Err: context.Canceled},
			wantType:   ErrorTypeCanceled,
			wantStatus: StatusClientClosedRequest,
			trips:      false,
		},
		{
			name:       "other",
			err:        errors.New("malformed HTTP response"),
			wantType:   ErrorTypeProtocol,
			wantStatus: 502,
			trips:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callErr := ClassifyTransportError("neural_network", 15*time.Second, tt.err)
			require.NotNil(t, callErr)
			assert.Equal(t, tt.wantType, callErr.Type)
			assert.Equal(t, tt.wantStatus, callErr.Status)
			assert.Equal(t, tt.trips, callErr.TripsBreaker())
			assert.Equal(t, "neural_network", callErr.Engine)
		})
	}

	assert.Nil(t, ClassifyTransportError("x", time.Second, nil))
}

func TestEngineCallError_Messages(t *testing.T) {
	assert.Contains(t, NewConfigurationError("nope").Error(), "unknown engine key")
	assert.Equal(t, 0, NewConfigurationError("nope").Status)
	assert.Contains(t, NewCircuitOpenError("identity").Detail, "circuit breaker open")
	assert.Contains(t, NewConnectionError("identity", nil).Detail, "not responding")
	assert.Contains(t, NewTimeoutError("identity", 20*time.Second, nil).Detail, "timed out (20s)")

	app := NewApplicationError("identity", 422, `{"detail":"bad phone"}`)
	assert.False(t, app.TripsBreaker())
	assert.False(t, NewCircuitOpenError("identity").TripsBreaker())
	assert.Equal(t, "[identity] 422: {\"detail\":\"bad phone\"}", app.Error())
}

func TestStatusOf(t *testing.T) {
	wrapped := fmt.Errorf("register: %w", NewApplicationError("login_register", 409, "exists"))
	assert.Equal(t, 409, StatusOf(wrapped, 500))
	assert.Equal(t, 500, StatusOf(NewConfigurationError("x"), 500))
	assert.Equal(t, 502, StatusOf(errors.New("plain"), 502))
	assert.Equal(t, 503, StatusOf(NewCircuitOpenError("x"), 500))
}

func TestHelpers(t *testing.T) {
	cause := errors.New("boom")
	callErr := NewProtocolError("chunks", cause)
	assert.True(t, errors.Is(callErr, cause))

	_, ok := AsEngineCallError(cause)
	assert.False(t, ok)

	assert.True(t, IsCircuitOpen(NewCircuitOpenError("x")))
	assert.True(t, IsTimeout(fmt.Errorf("wrap: %w", NewTimeoutError("x", time.Second, nil))))
	assert.Equal(t, "exists", DetailOf(NewApplicationError("x", 409, "exists")))
	assert.Equal(t, "boom", DetailOf(cause))
	assert.Equal(t, "", DetailOf(nil))
	assert.Equal(t, "circuit_open", ErrorTypeCircuitOpen.String())
	assert.Equal(t, "unknown", ErrorTypeUnknown.String())
}
