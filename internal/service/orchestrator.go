package service

import (
	"context"

	"CivicGate/internal/biz"
	apperrors "CivicGate/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// OrchestratorService exposes the composite pipelines.
type OrchestratorService struct {
	uc  *biz.OrchestratorUsecase
	log *log.Helper
}

// NewOrchestratorService creates a new OrchestratorService.
func NewOrchestratorService(uc *biz.OrchestratorUsecase, logger log.Logger) *OrchestratorService {
	return &OrchestratorService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

// Query runs the RAG pipeline.
func (s *OrchestratorService) Query(ctx context.Context, req *biz.QueryRequest) (*Envelope, error) {
	return s.wrap(ctx)(s.uc.Query(ctx, req))
}

// Onboard registers a citizen and builds the profile.
func (s *OrchestratorService) Onboard(ctx context.Context, req *biz.OnboardRequest) (*Envelope, error) {
	return s.wrap(ctx)(s.uc.Onboard(ctx, req))
}

// CheckEligibility evaluates schemes and explains the verdict.
func (s *OrchestratorService) CheckEligibility(ctx context.Context, req *biz.EligibilityRequest) (*Envelope, error) {
	return s.wrap(ctx)(s.uc.CheckEligibility(ctx, req))
}

// IngestPolicy fetches, chunks, embeds and stores a policy document.
func (s *OrchestratorService) IngestPolicy(ctx context.Context, req *biz.IngestRequest) (*Envelope, error) {
	return s.wrap(ctx)(s.uc.IngestPolicy(ctx, req))
}

// VoiceQuery answers a spoken query.
func (s *OrchestratorService) VoiceQuery(ctx context.Context, req *biz.VoiceQueryRequest) (*Envelope, error) {
	return s.wrap(ctx)(s.uc.VoiceQuery(ctx, req))
}

// Simulate runs a what-if simulation.
func (s *OrchestratorService) Simulate(ctx context.Context, req *biz.SimulateRequest) (*Envelope, error) {
	return s.wrap(ctx)(s.uc.Simulate(ctx, req))
}

func (s *OrchestratorService) wrap(ctx context.Context) func(*biz.PipelineResult, error) (*Envelope, error) {
	return func(res *biz.PipelineResult, err error) (*Envelope, error) {
		if err != nil {
			if apperrors.IsTimeout(err) {
				s.log.WithContext(ctx).Warnf("pipeline aborted on engine timeout: %v", err)
			}
			return nil, err
		}
		return fromResult(ctx, res), nil
	}
}
