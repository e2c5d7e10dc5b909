package biz

import (
	"context"
	"fmt"
	"net/http"

	"CivicGate/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
)

// SimulateRequest is the input of the what-if pipeline.
type SimulateRequest struct {
	UserID         string                 `json:"user_id"`
	CurrentProfile map[string]interface{} `json:"current_profile"`
	Changes        map[string]interface{} `json:"changes"`
	Explain        *bool                  `json:"explain,omitempty"`
}

// Normalize applies defaults and validates the request.
func (r *SimulateRequest) Normalize() error {
	switch {
	case r.UserID == "":
		return errors.BadRequest("VALIDATION_ERROR", "user_id is required")
	case r.CurrentProfile == nil:
		return errors.BadRequest("VALIDATION_ERROR", "current_profile is required")
	case r.Changes == nil:
		return errors.BadRequest("VALIDATION_ERROR", "changes is required")
	}
	if r.Explain == nil {
		explain := true
		r.Explain = &explain
	}
	return nil
}

// Simulate runs the what-if engine, then an optional explanation.
func (uc *OrchestratorUsecase) Simulate(ctx context.Context, req *SimulateRequest) (*PipelineResult, error) {
	if err := uc.validate(ctx, PipelineSimulate, req); err != nil {
		return nil, err
	}
	pc := uc.x.Begin(ctx, PipelineSimulate)

	sim, err := Run[map[string]interface{}](ctx, pc, Step{
		Name:   "simulation",
		Engine: model.EngineSimulation,
		Path:   "/simulate/what-if",
		Payload: map[string]interface{}{
			"user_id":         req.UserID,
			"current_profile": req.CurrentProfile,
			"changes":         req.Changes,
		},
	}).OrAbort("Simulation engine unavailable: ", http.StatusInternalServerError)
	if err != nil {
		uc.x.Finish(ctx, pc, false)
		return nil, err
	}
	sim = emptyIfNil(sim)

	var explanation interface{}
	if *req.Explain {
		empty := map[string]interface{}{}
		text := fmt.Sprintf("Simulation results for user %s: Changes applied: %s. Before: %s. After: %s. Delta: %s.",
			req.UserID,
			render(req.Changes),
			render(valueOr(sim, "before", empty)),
			render(valueOr(sim, "after", empty)),
			render(valueOr(sim, "delta", empty)),
		)
		explanation = uc.explain(ctx, pc, text)
	}

	uc.x.Audit(ctx, pc, model.AuditEventSimulationRun, req.UserID, map[string]interface{}{
		"changes": req.Changes,
	})

	data := make(map[string]interface{}, len(sim)+2)
	for k, v := range sim {
		data[k] = v
	}
	data["explanation"] = explanation

	uc.x.Finish(ctx, pc, true)
	return &PipelineResult{Success: true, Data: withDegraded(data, pc.Degraded())}, nil
}
