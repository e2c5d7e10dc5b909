package biz

import (
	"context"
	"testing"
	"time"

	"CivicGate/internal/model"
	apperrors "CivicGate/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onboardEngines() *fakeEngines {
	return newFakeEngines().
		on(model.EngineLoginRegister, "/auth/register", map[string]interface{}{
			"user_id": "u-100", "access_token": "at", "refresh_token": "rt",
		}).
		on(model.EngineIdentity, "/identity/create", map[string]interface{}{"identity_token": "it"}).
		on(model.EngineMetadata, "/metadata/process", map[string]interface{}{
			"normalized":         map[string]interface{}{"state": "Bihar", "age": 40},
			"derived_attributes": map[string]interface{}{"age_group": "adult"},
		}).
		on(model.EngineEligibilityRules, "/eligibility/check", map[string]interface{}{
			"eligible": 4, "partial": 2, "total_schemes_checked": 30,
		}).
		on(model.EngineDeadlineMonitoring, "/deadlines/check", map[string]interface{}{"total_deadlines": 3}).
		on(model.EngineJSONUserInfo, "/profile/generate", map[string]interface{}{"completeness": 0.75})
}

func newOnboardRequest() *OnboardRequest {
	state := "Bihar"
	income := 120000.0
	return &OnboardRequest{
		Phone:        "9876543210",
		Password:     "secret",
		Name:         "Asha",
		State:        &state,
		AnnualIncome: &income,
	}
}

func TestOnboard_Success(t *testing.T) {
	engines := onboardEngines()
	uc, audit := newTestOrchestrator(engines)

	res, err := uc.Onboard(context.Background(), newOnboardRequest())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Onboarding complete", res.Message)

	data := res.Data.(*OnboardResult)
	assert.Equal(t, "u-100", data.UserID)
	assert.Equal(t, "at", data.AccessToken)
	assert.Equal(t, "rt", data.RefreshToken)
	assert.Equal(t, "it", data.IdentityToken)
	require.NotNil(t, data.EligibilitySummary)
	assert.Equal(t, 4.0, data.EligibilitySummary.Eligible)
	assert.Equal(t, 30.0, data.EligibilitySummary.TotalChecked)
	assert.Equal(t, 3.0, data.UpcomingDeadlines)
	assert.Equal(t, 0.75, data.ProfileCompleteness)
	assert.Nil(t, data.Degraded)

	register := engines.payload(t, model.EngineLoginRegister, "/auth/register")
	assert.Equal(t, "en", register["language_preference"])
	assert.Equal(t, true, register["consent_data_processing"])

	meta := engines.payload(t, model.EngineMetadata, "/metadata/process")
	assert.Equal(t, 120000.0, meta["annual_income"])
	assert.Equal(t, "Bihar", meta["state"])
	assert.NotContains(t, meta, "gender")

	store := engines.payload(t, model.EngineProcessedMetadata, "/processed-metadata/store")
	assert.Equal(t, map[string]interface{}{"state": "Bihar", "age": 40.0}, store["processed_data"])

	elig := engines.payload(t, model.EngineEligibilityRules, "/eligibility/check")
	assert.Equal(t, "u-100", elig["user_id"])
	assert.Equal(t, "Bihar", elig["profile"].(map[string]interface{})["state"])

	records := audit.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.AuditEventUserOnboarded, records[0].EventType)
	assert.Equal(t, "9876****", records[0].Payload["phone"])
	assert.Equal(t, 7, records[0].Payload["steps_completed"])
	assert.Equal(t, []string{}, records[0].Payload["degraded"])
}

func TestOnboard_RegisterFailureAborts(t *testing.T) {
	engines := onboardEngines().fail(model.EngineLoginRegister, "/auth/register",
		apperrors.NewApplicationError(model.EngineLoginRegister, 409, "phone already registered"))
	uc, audit := newTestOrchestrator(engines)

	res, err := uc.Onboard(context.Background(), newOnboardRequest())
	assert.Nil(t, res)
	perr := pipelineError(t, err)
	assert.Equal(t, 409, perr.Status)
	assert.Equal(t, "Registration failed: phone already registered", perr.Message)

	assert.Equal(t, 1, engines.count())
	assert.Empty(t, audit.all())
}

func TestOnboard_RegisterWithoutStatusFallsBackTo500(t *testing.T) {
	engines := onboardEngines().fail(model.EngineLoginRegister, "/auth/register",
		apperrors.NewConfigurationError(model.EngineLoginRegister))
	uc, _ := newTestOrchestrator(engines)

	_, err := uc.Onboard(context.Background(), newOnboardRequest())
	assert.Equal(t, 500, pipelineError(t, err).Status)
}

func TestOnboard_DegradedSteps(t *testing.T) {
	engines := onboardEngines().
		fail(model.EngineIdentity, "/identity/create", connErr(model.EngineIdentity)).
		fail(model.EngineEligibilityRules, "/eligibility/check", connErr(model.EngineEligibilityRules)).
		slow(model.EngineEligibilityRules, "/eligibility/check", 30*time.Millisecond).
		fail(model.EngineDeadlineMonitoring, "/deadlines/check", connErr(model.EngineDeadlineMonitoring))
	uc, audit := newTestOrchestrator(engines)

	res, err := uc.Onboard(context.Background(), newOnboardRequest())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Onboarding complete with some services degraded", res.Message)

	data := res.Data.(*OnboardResult)
	assert.Equal(t, []string{"identity_creation", "eligibility_check", "deadline_check"}, data.Degraded)
	assert.Empty(t, data.IdentityToken)
	assert.Nil(t, data.EligibilitySummary)
	assert.Nil(t, data.UpcomingDeadlines)

	profile := engines.payload(t, model.EngineJSONUserInfo, "/profile/generate")
	assert.Equal(t, map[string]interface{}{}, profile["eligibility"])

	records := audit.all()
	require.Len(t, records, 1)
	assert.Equal(t, 4, records[0].Payload["steps_completed"])
}

func TestOnboard_MetadataFailureSendsEmptyProfile(t *testing.T) {
	engines := onboardEngines().fail(model.EngineMetadata, "/metadata/process", connErr(model.EngineMetadata))
	uc, _ := newTestOrchestrator(engines)

	res, err := uc.Onboard(context.Background(), newOnboardRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"metadata_normalization"}, res.Data.(*OnboardResult).Degraded)

	store := engines.payload(t, model.EngineProcessedMetadata, "/processed-metadata/store")
	assert.Equal(t, map[string]interface{}{}, store["processed_data"])
	assert.Equal(t, map[string]interface{}{}, store["derived_attributes"])
}

func TestOnboard_Validation(t *testing.T) {
	uc, _ := newTestOrchestrator(newFakeEngines())
	_, err := uc.Onboard(context.Background(), &OnboardRequest{Phone: "1", Password: "p"})
	require.Error(t, err)
}
