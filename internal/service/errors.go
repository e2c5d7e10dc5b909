package service

import (
	"context"
	stderrors "errors"
	nethttp "net/http"

	"CivicGate/internal/biz"
	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Front-door error codes.
const (
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeNotFound          = "NOT_FOUND"
	CodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	CodeRateLimit         = "RATE_LIMIT"
	CodeValidation        = "VALIDATION_ERROR"
	CodeEngineUnavailable = "ENGINE_UNAVAILABLE"
	CodeEngineTimeout     = "ENGINE_TIMEOUT"
	CodeInternal          = "INTERNAL_ERROR"
)

// codeForStatus maps an HTTP status to the envelope error code.
func codeForStatus(status int) string {
	switch status {
	case nethttp.StatusUnauthorized:
		return CodeAuthRequired
	case nethttp.StatusNotFound:
		return CodeNotFound
	case nethttp.StatusMethodNotAllowed:
		return CodeMethodNotAllowed
	case nethttp.StatusTooManyRequests:
		return CodeRateLimit
	case nethttp.StatusBadRequest, nethttp.StatusUnprocessableEntity:
		return CodeValidation
	case nethttp.StatusServiceUnavailable:
		return CodeEngineUnavailable
	case nethttp.StatusGatewayTimeout:
		return CodeEngineTimeout
	default:
		return CodeInternal
	}
}

// ErrorEnvelope converts err into a status and envelope.
// retryAfter is non-empty for rate limit rejections.
func ErrorEnvelope(ctx context.Context, err error) (status int, env *Envelope, retryAfter string) {
	var perr *biz.PipelineError
	if stderrors.As(err, &perr) {
		status = perr.Status
		if status < 400 {
			status = nethttp.StatusInternalServerError
		}
		env = NewEnvelope(ctx, false, perr.Message, perr.Data)
		env.Errors = []ErrorDetail{{Code: codeForStatus(status), Message: perr.Message}}
		return status, env, ""
	}

	se := errors.FromError(err)
	status = int(se.Code)
	if status < 400 || status > 599 {
		status = nethttp.StatusInternalServerError
	}

	code := codeForStatus(status)
	message := se.Message
	detail := se.Metadata["detail"]
	switch {
	case status == nethttp.StatusTooManyRequests && se.Reason != "":
		// BURST_LIMIT / RATE_LIMIT
		code = se.Reason
		retryAfter = se.Metadata["retry_after"]
	case status == nethttp.StatusUnauthorized:
		message = "Authentication required"
		detail = se.Message
	case code == CodeInternal && se.Reason == errors.UnknownReason:
		message = "Internal server error"
	}

	env = NewEnvelope(ctx, false, message, nil)
	entry := ErrorDetail{Code: code, Message: message}
	if detail != "" {
		entry.Message = detail
	}
	env.Errors = []ErrorDetail{entry}
	return status, env, retryAfter
}

// NewErrorEncoder returns the server's error encoder. The filters that
// answer before routing use it too.
func NewErrorEncoder(logger log.Logger) http.EncodeErrorFunc {
	helper := pkglog.NewLogHelper(logger)
	return func(w nethttp.ResponseWriter, r *nethttp.Request, err error) {
		status, env, retryAfter := ErrorEnvelope(r.Context(), err)
		if status >= nethttp.StatusInternalServerError {
			helper.Gateway("request failed", "trace_id", env.TraceID, "status", status, "error", err.Error())
		}
		if retryAfter != "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		writeJSON(w, r, status, env)
	}
}

// writeJSON encodes v with the codec negotiated from the Accept header.
func writeJSON(w nethttp.ResponseWriter, r *nethttp.Request, status int, v interface{}) {
	codec, _ := http.CodecForRequest(r, "Accept")
	body, err := codec.Marshal(v)
	if err != nil {
		w.WriteHeader(nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/"+codec.Name())
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
