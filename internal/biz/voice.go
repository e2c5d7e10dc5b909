package biz

import (
	"context"
	"fmt"
	"strings"

	"CivicGate/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
)

const (
	anonymousUserID = "anonymous"
	voiceTopK       = 3

	voiceUnavailableText = "I'm sorry, the service is temporarily unavailable. Please try again."
	voiceNotFoundText    = "I could not find relevant information."
	voiceFallbackText    = "I'm sorry, I couldn't understand. Please try again."
)

// VoiceQueryRequest is the input of the voice pipeline.
type VoiceQueryRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// Normalize applies defaults and validates the request.
func (r *VoiceQueryRequest) Normalize() error {
	if r.Text == "" {
		return errors.BadRequest("VALIDATION_ERROR", "text is required")
	}
	if r.Language == "" {
		r.Language = "hindi"
	}
	if r.UserID == "" {
		r.UserID = anonymousUserID
	}
	return nil
}

// VoiceQueryResult is the data of a voice query.
type VoiceQueryResult struct {
	Query          string      `json:"query"`
	Response       string      `json:"response"`
	Intent         string      `json:"intent"`
	Language       string      `json:"language"`
	AudioSessionID interface{} `json:"audio_session_id"`
	AudioAvailable bool        `json:"audio_available"`
	Degraded       []string    `json:"degraded,omitempty"`
}

type ttsResponse struct {
	SessionID      interface{} `json:"session_id"`
	AudioAvailable bool        `json:"audio_available"`
}

type translateResponse struct {
	Translated *string `json:"translated"`
}

// VoiceQuery classifies the utterance, routes it, translates and synthesizes.
func (uc *OrchestratorUsecase) VoiceQuery(ctx context.Context, req *VoiceQueryRequest) (*PipelineResult, error) {
	if err := uc.validate(ctx, PipelineVoice, req); err != nil {
		return nil, err
	}
	pc := uc.x.Begin(ctx, PipelineVoice)

	classified := Run[map[string]interface{}](ctx, pc, Step{
		Name:    "intent_classification",
		Engine:  model.EngineNeuralNetwork,
		Path:    "/ai/intent",
		Payload: map[string]interface{}{"message": req.Text, "user_id": req.UserID},
	}).OrDegrade(map[string]interface{}{"intent": "general", "confidence": 0.0})

	intent := strings.ToLower(stringField(classified, "intent"))
	if intent == "" {
		intent = "general"
	}

	text, err := uc.routeVoice(ctx, pc, intent, req)
	if err != nil {
		pc.MarkDegraded("intent_routing", err)
		text = voiceUnavailableText
	}

	lang := strings.ToLower(req.Language)
	if lang != "english" && lang != "en" && text != "" {
		translated := Run[translateResponse](ctx, pc, Step{
			Name:   "translation",
			Engine: model.EngineNeuralNetwork,
			Path:   "/ai/translate",
			Payload: map[string]interface{}{
				"text":        text,
				"source_lang": "en",
				"target_lang": req.Language,
			},
		}).OrDegrade(translateResponse{})
		if translated.Translated != nil {
			text = *translated.Translated
		}
	}

	tts := Run[ttsResponse](ctx, pc, Step{
		Name:    "text_to_speech",
		Engine:  model.EngineSpeechInterface,
		Path:    "/speech/tts",
		Payload: map[string]interface{}{"text": text, "language": req.Language, "user_id": req.UserID},
	}).OrDegrade(ttsResponse{})

	uc.x.Audit(ctx, pc, model.AuditEventVoiceQuery, req.UserID, map[string]interface{}{
		"query":    req.Text,
		"language": req.Language,
		"intent":   intent,
	})

	uc.x.Finish(ctx, pc, true)
	return &PipelineResult{
		Success: true,
		Data: &VoiceQueryResult{
			Query:          req.Text,
			Response:       text,
			Intent:         intent,
			Language:       req.Language,
			AudioSessionID: tts.SessionID,
			AudioAvailable: tts.AudioAvailable,
			Degraded:       pc.Degraded(),
		},
	}, nil
}

// routeVoice answers the utterance with the engine owning the intent.
// Any failure along the route is reported as one error.
func (uc *OrchestratorUsecase) routeVoice(ctx context.Context, pc *PipelineContext, intent string, req *VoiceQueryRequest) (string, error) {
	switch intent {
	case "eligibility", "eligibility_check":
		out := Run[map[string]interface{}](ctx, pc, Step{
			Name:    "intent_routing",
			Engine:  model.EngineEligibilityRules,
			Path:    "/eligibility/check",
			Payload: map[string]interface{}{"user_id": req.UserID, "profile": map[string]interface{}{}},
		})
		if !out.OK() {
			return "", out.Err
		}
		return fmt.Sprintf("You are eligible for %v schemes. Total schemes checked: %v.",
			valueOr(out.Value, "eligible", 0), valueOr(out.Value, "total_schemes_checked", 0)), nil

	case "scheme_query", "scheme_info", "policy":
		search := Run[vectorSearchResponse](ctx, pc, Step{
			Name:    "intent_routing",
			Engine:  model.EngineVectorDatabase,
			Path:    "/vectors/search",
			Payload: map[string]interface{}{"query": req.Text, "top_k": voiceTopK},
		})
		if !search.OK() {
			return "", search.Err
		}
		var passages []string
		for _, hit := range search.Value.Results {
			if content := stringField(hit, "content"); content != "" {
				passages = append(passages, content)
			}
		}
		if len(passages) > 0 {
			return uc.voiceAnswer(ctx, pc, "/ai/rag", map[string]interface{}{
				"user_id":          req.UserID,
				"question":         req.Text,
				"context_passages": passages,
			}, "answer", voiceNotFoundText)
		}
		return uc.voiceAnswer(ctx, pc, "/ai/chat", map[string]interface{}{
			"user_id": req.UserID,
			"message": req.Text,
		}, "response", voiceNotFoundText)

	case "deadline":
		out := Run[map[string]interface{}](ctx, pc, Step{
			Name:    "intent_routing",
			Engine:  model.EngineDeadlineMonitoring,
			Path:    "/deadlines/check",
			Payload: map[string]interface{}{"user_id": req.UserID},
		})
		if !out.OK() {
			return "", out.Err
		}
		return fmt.Sprintf("You have %v upcoming deadlines. %v are critical.",
			valueOr(out.Value, "total_deadlines", 0), valueOr(out.Value, "critical", 0)), nil

	default:
		return uc.voiceAnswer(ctx, pc, "/ai/chat", map[string]interface{}{
			"user_id": req.UserID,
			"message": req.Text,
		}, "response", voiceFallbackText)
	}
}

// voiceAnswer calls a generation endpoint and reads one text field.
func (uc *OrchestratorUsecase) voiceAnswer(ctx context.Context, pc *PipelineContext, path string, payload map[string]interface{}, field, fallback string) (string, error) {
	out := Run[map[string]interface{}](ctx, pc, Step{
		Name:    "intent_routing",
		Engine:  model.EngineNeuralNetwork,
		Path:    path,
		Payload: payload,
		Timeout: generationTimeout,
	})
	if !out.OK() {
		return "", out.Err
	}
	if _, ok := out.Value[field]; !ok {
		return fallback, nil
	}
	return stringField(out.Value, field), nil
}
