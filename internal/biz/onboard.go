package biz

import (
	"context"
	"net/http"

	"CivicGate/internal/model"
	pkglog "CivicGate/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
)

// onboardSteps is the number of steps counted in the audit record.
const onboardSteps = 7

// OnboardRequest is the input of the onboarding pipeline.
// Optional profile fields are forwarded only when set.
type OnboardRequest struct {
	Phone                 string   `json:"phone"`
	Password              string   `json:"password"`
	Name                  string   `json:"name"`
	State                 *string  `json:"state,omitempty"`
	District              *string  `json:"district,omitempty"`
	LanguagePreference    string   `json:"language_preference,omitempty"`
	ConsentDataProcessing *bool    `json:"consent_data_processing,omitempty"`
	DateOfBirth           *string  `json:"date_of_birth,omitempty"`
	Gender                *string  `json:"gender,omitempty"`
	Pincode               *string  `json:"pincode,omitempty"`
	AnnualIncome          *float64 `json:"annual_income,omitempty"`
	Occupation            *string  `json:"occupation,omitempty"`
	Category              *string  `json:"category,omitempty"`
	Religion              *string  `json:"religion,omitempty"`
	MaritalStatus         *string  `json:"marital_status,omitempty"`
	EducationLevel        *string  `json:"education_level,omitempty"`
	FamilySize            *int     `json:"family_size,omitempty"`
	IsBPL                 *bool    `json:"is_bpl,omitempty"`
	IsRural               *bool    `json:"is_rural,omitempty"`
	DisabilityStatus      *string  `json:"disability_status,omitempty"`
	LandHoldingAcres      *float64 `json:"land_holding_acres,omitempty"`
}

// Normalize applies defaults and validates the request.
func (r *OnboardRequest) Normalize() error {
	switch {
	case r.Phone == "":
		return errors.BadRequest("VALIDATION_ERROR", "phone is required")
	case r.Password == "":
		return errors.BadRequest("VALIDATION_ERROR", "password is required")
	case r.Name == "":
		return errors.BadRequest("VALIDATION_ERROR", "name is required")
	}
	if r.LanguagePreference == "" {
		r.LanguagePreference = "en"
	}
	if r.ConsentDataProcessing == nil {
		consent := true
		r.ConsentDataProcessing = &consent
	}
	return nil
}

// profileFields returns the set fields for metadata normalization.
func (r *OnboardRequest) profileFields(userID string) map[string]interface{} {
	fields := map[string]interface{}{
		"user_id":             userID,
		"name":                r.Name,
		"phone":               r.Phone,
		"language_preference": r.LanguagePreference,
	}
	optional := map[string]interface{}{
		"state":              r.State,
		"district":           r.District,
		"date_of_birth":      r.DateOfBirth,
		"gender":             r.Gender,
		"pincode":            r.Pincode,
		"annual_income":      r.AnnualIncome,
		"occupation":         r.Occupation,
		"category":           r.Category,
		"religion":           r.Religion,
		"marital_status":     r.MaritalStatus,
		"education_level":    r.EducationLevel,
		"family_size":        r.FamilySize,
		"is_bpl":             r.IsBPL,
		"is_rural":           r.IsRural,
		"disability_status":  r.DisabilityStatus,
		"land_holding_acres": r.LandHoldingAcres,
	}
	for key, value := range optional {
		switch v := value.(type) {
		case *string:
			if v != nil {
				fields[key] = *v
			}
		case *float64:
			if v != nil {
				fields[key] = *v
			}
		case *int:
			if v != nil {
				fields[key] = *v
			}
		case *bool:
			if v != nil {
				fields[key] = *v
			}
		}
	}
	return fields
}

// EligibilitySummary condenses a batch eligibility check.
type EligibilitySummary struct {
	Eligible     interface{} `json:"eligible"`
	Partial      interface{} `json:"partial"`
	TotalChecked interface{} `json:"total_checked"`
}

// OnboardResult is the data of a finished onboarding.
type OnboardResult struct {
	UserID              string              `json:"user_id"`
	AccessToken         string              `json:"access_token"`
	RefreshToken        string              `json:"refresh_token"`
	IdentityToken       string              `json:"identity_token"`
	EligibilitySummary  *EligibilitySummary `json:"eligibility_summary"`
	UpcomingDeadlines   interface{}         `json:"upcoming_deadlines"`
	ProfileCompleteness interface{}         `json:"profile_completeness"`
	Degraded            []string            `json:"degraded,omitempty"`
}

type registerResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type identityResponse struct {
	IdentityToken string `json:"identity_token"`
}

// Onboard runs register → identity → metadata → processed store →
// eligibility ∥ deadlines → profile.
func (uc *OrchestratorUsecase) Onboard(ctx context.Context, req *OnboardRequest) (*PipelineResult, error) {
	if err := uc.validate(ctx, PipelineOnboard, req); err != nil {
		return nil, err
	}
	pc := uc.x.Begin(ctx, PipelineOnboard)

	// 注册失败直接终止
	reg, err := Run[registerResponse](ctx, pc, Step{
		Name:   "registration",
		Engine: model.EngineLoginRegister,
		Path:   "/auth/register",
		Payload: map[string]interface{}{
			"phone":                   req.Phone,
			"password":                req.Password,
			"name":                    req.Name,
			"state":                   req.State,
			"district":                req.District,
			"language_preference":     req.LanguagePreference,
			"consent_data_processing": *req.ConsentDataProcessing,
		},
	}).OrAbort("Registration failed: ", http.StatusInternalServerError)
	if err != nil {
		uc.x.Finish(ctx, pc, false)
		return nil, err
	}
	userID := reg.UserID

	identity := Run[identityResponse](ctx, pc, Step{
		Name:   "identity_creation",
		Engine: model.EngineIdentity,
		Path:   "/identity/create",
		Payload: map[string]interface{}{
			"user_id": userID,
			"name":    req.Name,
			"phone":   req.Phone,
			"dob":     req.DateOfBirth,
		},
	}).OrDegrade(identityResponse{})

	metadata := Run[map[string]interface{}](ctx, pc, Step{
		Name:    "metadata_normalization",
		Engine:  model.EngineMetadata,
		Path:    "/metadata/process",
		Payload: req.profileFields(userID),
	}).OrDegrade(map[string]interface{}{})

	// normalized 优先，否则使用原始结果
	normalized := emptyIfNil(metadata)
	if m, ok := mapField(metadata, "normalized"); ok {
		normalized = m
	}
	derived := valueOr(metadata, "derived_attributes", map[string]interface{}{})

	Run[map[string]interface{}](ctx, pc, Step{
		Name:   "processed_metadata_store",
		Engine: model.EngineProcessedMetadata,
		Path:   "/processed-metadata/store",
		Payload: map[string]interface{}{
			"user_id":            userID,
			"processed_data":     normalized,
			"derived_attributes": derived,
		},
	}).OrDegrade(nil)

	var eligibility, deadlines map[string]interface{}
	uc.x.Parallel(pc,
		func(b *PipelineContext) {
			eligibility = Run[map[string]interface{}](ctx, b, Step{
				Name:    "eligibility_check",
				Engine:  model.EngineEligibilityRules,
				Path:    "/eligibility/check",
				Payload: map[string]interface{}{"user_id": userID, "profile": normalized},
			}).OrDegrade(nil)
		},
		func(b *PipelineContext) {
			deadlines = Run[map[string]interface{}](ctx, b, Step{
				Name:    "deadline_check",
				Engine:  model.EngineDeadlineMonitoring,
				Path:    "/deadlines/check",
				Payload: map[string]interface{}{"user_id": userID, "state": req.State},
			}).OrDegrade(nil)
		},
	)

	profile := Run[map[string]interface{}](ctx, pc, Step{
		Name:   "profile_generation",
		Engine: model.EngineJSONUserInfo,
		Path:   "/profile/generate",
		Payload: map[string]interface{}{
			"user_id":     userID,
			"metadata":    metadata,
			"eligibility": emptyIfNil(eligibility),
			"deadlines":   emptyIfNil(deadlines),
		},
	}).OrDegrade(nil)

	degraded := pc.Degraded()
	uc.x.Audit(ctx, pc, model.AuditEventUserOnboarded, userID, map[string]interface{}{
		"phone":           pkglog.MaskPhone(req.Phone),
		"steps_completed": onboardSteps - len(degraded),
		"degraded":        emptyIfNilList(degraded),
	})

	result := &OnboardResult{
		UserID:        userID,
		AccessToken:   reg.AccessToken,
		RefreshToken:  reg.RefreshToken,
		IdentityToken: identity.IdentityToken,
		Degraded:      degraded,
	}
	if len(eligibility) > 0 {
		result.EligibilitySummary = &EligibilitySummary{
			Eligible:     valueOr(eligibility, "eligible", 0),
			Partial:      valueOr(eligibility, "partial", 0),
			TotalChecked: valueOr(eligibility, "total_schemes_checked", 0),
		}
	}
	if len(deadlines) > 0 {
		result.UpcomingDeadlines = valueOr(deadlines, "total_deadlines", 0)
	}
	if len(profile) > 0 {
		result.ProfileCompleteness = profile["completeness"]
	}

	message := "Onboarding complete"
	if pc.IsDegraded() {
		message = "Onboarding complete with some services degraded"
	}
	uc.x.Finish(ctx, pc, true)
	return &PipelineResult{Success: true, Message: message, Data: result}, nil
}

func emptyIfNil(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func emptyIfNilList(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
