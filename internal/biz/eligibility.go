package biz

import (
	"context"
	"fmt"
	"net/http"

	"CivicGate/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
)

const explanationMaxLength = 300

// EligibilityRequest is the input of the eligibility pipeline.
type EligibilityRequest struct {
	UserID    string                 `json:"user_id"`
	Profile   map[string]interface{} `json:"profile"`
	SchemeIDs []string               `json:"scheme_ids,omitempty"`
	Explain   *bool                  `json:"explain,omitempty"`
}

// Normalize applies defaults and validates the request.
func (r *EligibilityRequest) Normalize() error {
	if r.UserID == "" {
		return errors.BadRequest("VALIDATION_ERROR", "user_id is required")
	}
	if r.Profile == nil {
		return errors.BadRequest("VALIDATION_ERROR", "profile is required")
	}
	if r.Explain == nil {
		explain := true
		r.Explain = &explain
	}
	return nil
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

// CheckEligibility runs the deterministic check, then an optional explanation.
func (uc *OrchestratorUsecase) CheckEligibility(ctx context.Context, req *EligibilityRequest) (*PipelineResult, error) {
	if err := uc.validate(ctx, PipelineEligibility, req); err != nil {
		return nil, err
	}
	pc := uc.x.Begin(ctx, PipelineEligibility)

	var schemeIDs interface{}
	if req.SchemeIDs != nil {
		schemeIDs = req.SchemeIDs
	}
	verdict, err := Run[map[string]interface{}](ctx, pc, Step{
		Name:   "eligibility",
		Engine: model.EngineEligibilityRules,
		Path:   "/eligibility/check",
		Payload: map[string]interface{}{
			"user_id":    req.UserID,
			"profile":    req.Profile,
			"scheme_ids": schemeIDs,
		},
	}).OrAbort("Eligibility engine unavailable: ", http.StatusInternalServerError)
	if err != nil {
		uc.x.Finish(ctx, pc, false)
		return nil, err
	}
	verdict = emptyIfNil(verdict)

	var explanation interface{}
	if *req.Explain {
		text := fmt.Sprintf("Eligibility results for user %s: %s",
			req.UserID, render(valueOr(verdict, "results", []interface{}{})))
		explanation = uc.explain(ctx, pc, text)
	}

	uc.x.Audit(ctx, pc, model.AuditEventEligibilityChecked, req.UserID, map[string]interface{}{
		"eligible":      valueOr(verdict, "eligible", 0),
		"partial":       valueOr(verdict, "partial", 0),
		"total_checked": valueOr(verdict, "total_schemes_checked", 0),
	})

	data := make(map[string]interface{}, len(verdict)+2)
	for k, v := range verdict {
		data[k] = v
	}
	data["explanation"] = explanation

	uc.x.Finish(ctx, pc, true)
	return &PipelineResult{Success: true, Data: withDegraded(data, pc.Degraded())}, nil
}

// explain asks the model for a short summary; nil when it degraded.
func (uc *OrchestratorUsecase) explain(ctx context.Context, pc *PipelineContext, text string) interface{} {
	out := Run[summaryResponse](ctx, pc, Step{
		Name:    "ai_explanation",
		Engine:  model.EngineNeuralNetwork,
		Path:    "/ai/summarize",
		Payload: map[string]interface{}{"text": text, "max_length": explanationMaxLength},
		Timeout: summarizeTimeout,
	})
	if !out.OK() {
		out.OrDegrade(summaryResponse{})
		return nil
	}
	return out.Value.Summary
}
