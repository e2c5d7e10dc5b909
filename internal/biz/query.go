package biz

import (
	"context"
	"math"
	"net/http"
	"time"

	"CivicGate/internal/model"
	apperrors "CivicGate/pkg/errors"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/google/uuid"
)

const (
	defaultTopK = 5
	maxTopK     = 50

	// 返回给客户端的来源摘要
	maxQuerySources     = 5
	maxSourceContentLen = 200
	trustSourceCount    = 3
)

// QueryRequest is the input of the RAG query pipeline.
type QueryRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

// Normalize applies defaults and validates the request.
func (r *QueryRequest) Normalize() error {
	if r.Message == "" {
		return errors.BadRequest("VALIDATION_ERROR", "message is required")
	}
	if r.UserID == "" {
		return errors.BadRequest("VALIDATION_ERROR", "user_id is required")
	}
	if r.TopK == 0 {
		r.TopK = defaultTopK
	}
	if r.TopK < 1 || r.TopK > maxTopK {
		return errors.BadRequest("VALIDATION_ERROR", "top_k must be between 1 and 50")
	}
	return nil
}

// QuerySource is one retrieved passage echoed back to the caller.
type QuerySource struct {
	ID      interface{} `json:"id"`
	Score   interface{} `json:"score"`
	Content string      `json:"content"`
}

// QueryResult is the data of a successful query.
type QueryResult struct {
	Response         string                 `json:"response"`
	Intent           interface{}            `json:"intent"`
	IntentConfidence interface{}            `json:"intent_confidence"`
	Sources          []QuerySource          `json:"sources"`
	Anomaly          map[string]interface{} `json:"anomaly"`
	Trust            map[string]interface{} `json:"trust"`
	Degraded         []string               `json:"degraded,omitempty"`
	LatencyMs        float64                `json:"latency_ms"`
}

type vectorSearchResponse struct {
	Results []map[string]interface{} `json:"results"`
}

type generationResponse struct {
	Answer   string `json:"answer"`
	Response string `json:"response"`
}

// Query runs intent → vector search → generation → anomaly ∥ trust.
func (uc *OrchestratorUsecase) Query(ctx context.Context, req *QueryRequest) (*PipelineResult, error) {
	if err := uc.validate(ctx, PipelineQuery, req); err != nil {
		return nil, err
	}
	pc := uc.x.Begin(ctx, PipelineQuery)

	intent := Run[map[string]interface{}](ctx, pc, Step{
		Name:    "intent_classification",
		Engine:  model.EngineNeuralNetwork,
		Path:    "/ai/intent",
		Payload: map[string]interface{}{"message": req.Message, "user_id": req.UserID},
	}).OrDegrade(map[string]interface{}{"intent": "general", "confidence": 0.0})

	search := Run[vectorSearchResponse](ctx, pc, Step{
		Name:    "vector_search",
		Engine:  model.EngineVectorDatabase,
		Path:    "/vectors/search",
		Payload: map[string]interface{}{"query": req.Message, "top_k": req.TopK},
	}).OrDegrade(vectorSearchResponse{})

	hits := search.Results
	passages := make([]string, 0, len(hits))
	for _, hit := range hits {
		if content := stringField(hit, "content"); content != "" {
			passages = append(passages, content)
		}
	}

	// 有检索上下文走 RAG，否则退化为直接对话
	gen := Step{
		Name:    "ai_generation",
		Engine:  model.EngineNeuralNetwork,
		Timeout: generationTimeout,
	}
	if len(passages) > 0 {
		gen.Path = "/ai/rag"
		gen.Payload = map[string]interface{}{
			"user_id":          req.UserID,
			"question":         req.Message,
			"context_passages": passages,
		}
	} else {
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		gen.Path = "/ai/chat"
		gen.Payload = map[string]interface{}{
			"user_id":    req.UserID,
			"message":    req.Message,
			"session_id": sessionID,
		}
	}
	genOut := Run[generationResponse](ctx, pc, gen)
	if !genOut.OK() {
		pc.MarkDegraded("ai_generation", genOut.Err)
		uc.x.Finish(ctx, pc, false)
		return nil, &PipelineError{
			Status:  apperrors.StatusOf(genOut.Err, http.StatusServiceUnavailable),
			Message: "AI service temporarily unavailable. Please try again.",
			Data:    map[string]interface{}{"degraded": pc.Degraded()},
			Err:     genOut.Err,
		}
	}
	answer := genOut.Value

	anomaly := map[string]interface{}{}
	trust := map[string]interface{}{}
	dataSources := make([]interface{}, 0, trustSourceCount)
	for i, hit := range hits {
		if i == trustSourceCount {
			break
		}
		dataSources = append(dataSources, valueOr(hit, "vector_id", ""))
	}
	uc.x.Parallel(pc,
		func(b *PipelineContext) {
			anomaly = Run[map[string]interface{}](ctx, b, Step{
				Name:   "anomaly_check",
				Engine: model.EngineAnomalyDetection,
				Path:   "/anomaly/check",
				Payload: map[string]interface{}{
					"user_id": req.UserID,
					"profile": map[string]interface{}{"response_length": len(render(answer))},
				},
			}).OrDegrade(map[string]interface{}{})
		},
		func(b *PipelineContext) {
			trust = Run[map[string]interface{}](ctx, b, Step{
				Name:   "trust_scoring",
				Engine: model.EngineTrustScoring,
				Path:   "/trust/score",
				Payload: map[string]interface{}{
					"user_id":          req.UserID,
					"data_sources":     dataSources,
					"model_confidence": valueOr(intent, "confidence", 0.5),
				},
			}).OrDegrade(map[string]interface{}{})
		},
	)
	if anomaly == nil {
		anomaly = map[string]interface{}{}
	}
	if trust == nil {
		trust = map[string]interface{}{}
	}

	uc.x.Audit(ctx, pc, model.AuditEventRAGQuery, req.UserID, map[string]interface{}{
		"query":         req.Message,
		"intent":        intent["intent"],
		"sources_count": len(passages),
	})

	sources := make([]QuerySource, 0, maxQuerySources)
	for i, hit := range hits {
		if i == maxQuerySources {
			break
		}
		sources = append(sources, QuerySource{
			ID:      hit["vector_id"],
			Score:   hit["score"],
			Content: truncateRunes(stringField(hit, "content"), maxSourceContentLen),
		})
	}

	response := answer.Answer
	if response == "" {
		response = answer.Response
	}

	uc.x.Finish(ctx, pc, true)
	return &PipelineResult{
		Success: true,
		Data: &QueryResult{
			Response:         response,
			Intent:           intent["intent"],
			IntentConfidence: intent["confidence"],
			Sources:          sources,
			Anomaly:          anomaly,
			Trust:            trust,
			Degraded:         pc.Degraded(),
			LatencyMs:        latencyMs(pc.StartedAt),
		},
	}, nil
}

// latencyMs is the elapsed time in milliseconds, rounded to one decimal.
func latencyMs(start time.Time) float64 {
	ms := float64(time.Since(start).Microseconds()) / 1000
	return math.Round(ms*10) / 10
}
