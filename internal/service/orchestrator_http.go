package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// Operation names, used by the selector middleware to pick public routes.
const (
	OperationOrchestratorQuery            = "/civicgate.v1.Orchestrator/Query"
	OperationOrchestratorOnboard          = "/civicgate.v1.Orchestrator/Onboard"
	OperationOrchestratorCheckEligibility = "/civicgate.v1.Orchestrator/CheckEligibility"
	OperationOrchestratorIngestPolicy     = "/civicgate.v1.Orchestrator/IngestPolicy"
	OperationOrchestratorVoiceQuery       = "/civicgate.v1.Orchestrator/VoiceQuery"
	OperationOrchestratorSimulate         = "/civicgate.v1.Orchestrator/Simulate"
)

// RegisterOrchestratorHTTPServer mounts the composite routes under /api/v1.
func RegisterOrchestratorHTTPServer(s *http.Server, srv *OrchestratorService) {
	r := s.Route("/api/v1")
	r.POST("/query", bindHandler(OperationOrchestratorQuery, srv.Query))
	r.POST("/onboard", bindHandler(OperationOrchestratorOnboard, srv.Onboard))
	r.POST("/check-eligibility", bindHandler(OperationOrchestratorCheckEligibility, srv.CheckEligibility))
	r.POST("/ingest-policy", bindHandler(OperationOrchestratorIngestPolicy, srv.IngestPolicy))
	r.POST("/voice-query", bindHandler(OperationOrchestratorVoiceQuery, srv.VoiceQuery))
	r.POST("/simulate", bindHandler(OperationOrchestratorSimulate, srv.Simulate))
}

// bindHandler decodes the JSON body into T and runs call through the
// server middleware chain.
func bindHandler[T any](operation string, call func(context.Context, *T) (*Envelope, error)) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in T
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*T))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}
