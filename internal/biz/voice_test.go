package biz

import (
	"context"
	"testing"

	"CivicGate/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voiceEngines(intent string) *fakeEngines {
	return newFakeEngines().
		on(model.EngineNeuralNetwork, "/ai/intent", map[string]interface{}{"intent": intent}).
		on(model.EngineNeuralNetwork, "/ai/translate", map[string]interface{}{"translated": "अनुवाद"}).
		on(model.EngineSpeechInterface, "/speech/tts", map[string]interface{}{"session_id": "tts-1", "audio_available": true})
}

func TestVoiceQuery_EligibilityRoute(t *testing.T) {
	engines := voiceEngines("Eligibility").
		on(model.EngineEligibilityRules, "/eligibility/check", map[string]interface{}{"eligible": 3, "total_schemes_checked": 12})
	uc, audit := newTestOrchestrator(engines)

	res, err := uc.VoiceQuery(context.Background(), &VoiceQueryRequest{Text: "am I eligible", Language: "english"})
	require.NoError(t, err)

	data := res.Data.(*VoiceQueryResult)
	assert.Equal(t, "eligibility", data.Intent)
	assert.Equal(t, "You are eligible for 3 schemes. Total schemes checked: 12.", data.Response)
	assert.Equal(t, "tts-1", data.AudioSessionID)
	assert.True(t, data.AudioAvailable)
	assert.Nil(t, data.Degraded)
	assert.Empty(t, engines.called(model.EngineNeuralNetwork, "/ai/translate"))

	check := engines.payload(t, model.EngineEligibilityRules, "/eligibility/check")
	assert.Equal(t, "anonymous", check["user_id"])

	records := audit.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.AuditEventVoiceQuery, records[0].EventType)
	assert.Equal(t, "anonymous", records[0].UserID)
	assert.Equal(t, "eligibility", records[0].Payload["intent"])
}

func TestVoiceQuery_TranslatesByDefault(t *testing.T) {
	engines := voiceEngines("deadline").
		on(model.EngineDeadlineMonitoring, "/deadlines/check", map[string]interface{}{"total_deadlines": 2, "critical": 1})
	uc, _ := newTestOrchestrator(engines)

	res, err := uc.VoiceQuery(context.Background(), &VoiceQueryRequest{Text: "deadlines?", UserID: "u1"})
	require.NoError(t, err)

	data := res.Data.(*VoiceQueryResult)
	assert.Equal(t, "hindi", data.Language)
	assert.Equal(t, "अनुवाद", data.Response)

	translate := engines.payload(t, model.EngineNeuralNetwork, "/ai/translate")
	assert.Equal(t, "You have 2 upcoming deadlines. 1 are critical.", translate["text"])
	assert.Equal(t, "en", translate["source_lang"])
	assert.Equal(t, "hindi", translate["target_lang"])

	tts := engines.payload(t, model.EngineSpeechInterface, "/speech/tts")
	assert.Equal(t, "अनुवाद", tts["text"])
}

func TestVoiceQuery_SchemeRouteUsesRAG(t *testing.T) {
	engines := voiceEngines("scheme_info").
		on(model.EngineVectorDatabase, "/vectors/search", map[string]interface{}{
			"results": []map[string]interface{}{{"vector_id": "v1", "content": "PM-KISAN"}},
		}).
		on(model.EngineNeuralNetwork, "/ai/rag", map[string]interface{}{"answer": "It pays 6000."})
	uc, _ := newTestOrchestrator(engines)

	res, err := uc.VoiceQuery(context.Background(), &VoiceQueryRequest{Text: "pm kisan", Language: "EN"})
	require.NoError(t, err)
	assert.Equal(t, "It pays 6000.", res.Data.(*VoiceQueryResult).Response)

	search := engines.payload(t, model.EngineVectorDatabase, "/vectors/search")
	assert.Equal(t, 3, search["top_k"])
	assert.Empty(t, engines.called(model.EngineNeuralNetwork, "/ai/translate"))
}

func TestVoiceQuery_SchemeRouteWithoutAnswerField(t *testing.T) {
	engines := voiceEngines("policy").
		on(model.EngineVectorDatabase, "/vectors/search", map[string]interface{}{"results": []interface{}{}}).
		on(model.EngineNeuralNetwork, "/ai/chat", map[string]interface{}{"other": "x"})
	uc, _ := newTestOrchestrator(engines)

	res, err := uc.VoiceQuery(context.Background(), &VoiceQueryRequest{Text: "q", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "I could not find relevant information.", res.Data.(*VoiceQueryResult).Response)
}

func TestVoiceQuery_RoutingFailureApologizes(t *testing.T) {
	engines := voiceEngines("general").fail(model.EngineNeuralNetwork, "/ai/chat", connErr(model.EngineNeuralNetwork))
	uc, audit := newTestOrchestrator(engines)

	res, err := uc.VoiceQuery(context.Background(), &VoiceQueryRequest{Text: "hello", Language: "en"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	data := res.Data.(*VoiceQueryResult)
	assert.Equal(t, "I'm sorry, the service is temporarily unavailable. Please try again.", data.Response)
	assert.Equal(t, []string{"intent_routing"}, data.Degraded)
	assert.Len(t, audit.all(), 1)
}

func TestVoiceQuery_IntentFailureFallsBackToChat(t *testing.T) {
	engines := voiceEngines("").
		fail(model.EngineNeuralNetwork, "/ai/intent", connErr(model.EngineNeuralNetwork)).
		on(model.EngineNeuralNetwork, "/ai/chat", map[string]interface{}{"response": "Namaste"}).
		fail(model.EngineSpeechInterface, "/speech/tts", connErr(model.EngineSpeechInterface)).
		fail(model.EngineNeuralNetwork, "/ai/translate", connErr(model.EngineNeuralNetwork))
	uc, _ := newTestOrchestrator(engines)

	res, err := uc.VoiceQuery(context.Background(), &VoiceQueryRequest{Text: "hello"})
	require.NoError(t, err)

	data := res.Data.(*VoiceQueryResult)
	assert.Equal(t, "general", data.Intent)
	assert.Equal(t, "Namaste", data.Response)
	assert.Equal(t, []string{"intent_classification", "translation", "text_to_speech"}, data.Degraded)
	assert.Nil(t, data.AudioSessionID)
	assert.False(t, data.AudioAvailable)
}
