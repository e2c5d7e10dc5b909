package biz

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
)

// Pipeline names, used for logging and metric labels.
const (
	PipelineQuery       = "query"
	PipelineOnboard     = "onboard"
	PipelineEligibility = "check_eligibility"
	PipelineIngest      = "ingest_policy"
	PipelineVoice       = "voice_query"
	PipelineSimulate    = "simulate"
)

// OrchestratorUsecase runs the composite pipelines.
// Each pipeline lives in its own file.
type OrchestratorUsecase struct {
	x      *Executor
	logger *log.Helper
}

// NewOrchestratorUsecase creates a new orchestrator use case.
func NewOrchestratorUsecase(x *Executor, logger log.Logger) *OrchestratorUsecase {
	return &OrchestratorUsecase{
		x:      x,
		logger: log.NewHelper(logger),
	}
}

type normalizer interface {
	Normalize() error
}

// validate 规范化请求，校验失败时不进入流水线
func (uc *OrchestratorUsecase) validate(ctx context.Context, pipeline string, req normalizer) error {
	if err := req.Normalize(); err != nil {
		uc.logger.WithContext(ctx).Infow("msg", "request rejected", "pipeline", pipeline, "error", err)
		return err
	}
	return nil
}
