package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"CivicGate/internal/biz"
	"CivicGate/internal/model"
	apperrors "CivicGate/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timeoutEngines times out on every call.
type timeoutEngines struct{}

func (timeoutEngines) Call(_ context.Context, req *model.EngineRequest) (json.RawMessage, error) {
	return nil, apperrors.NewTimeoutError(req.Engine, time.Second, context.DeadlineExceeded)
}

type discardAudit struct{}

func (discardAudit) Emit(context.Context, *model.AuditRecord) {}

func TestOrchestratorService_QueryTimeoutIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewStdLogger(&buf)
	uc := biz.NewOrchestratorUsecase(biz.NewExecutor(timeoutEngines{}, discardAudit{}, nil, logger), logger)
	svc := NewOrchestratorService(uc, logger)

	env, err := svc.Query(tracedContext(), &biz.QueryRequest{Message: "what is pm kisan", UserID: "u1"})
	require.Error(t, err)
	assert.Nil(t, env)
	assert.True(t, apperrors.IsTimeout(err))

	var pipeErr *biz.PipelineError
	require.True(t, errors.As(err, &pipeErr))
	assert.Equal(t, 504, pipeErr.Status)
	assert.Contains(t, buf.String(), "pipeline aborted on engine timeout")
}
