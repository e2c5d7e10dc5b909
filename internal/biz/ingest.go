package biz

import (
	"context"
	"fmt"
	"net/http"

	"CivicGate/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/google/uuid"
)

// Chunking parameters sent to the chunks engine.
const (
	chunkStrategy   = "sentence"
	chunkSize       = 512
	chunkOverlap    = 64
	policyNamespace = "policies"
	systemUserID    = "system"
)

// IngestRequest is the input of the policy ingestion pipeline.
type IngestRequest struct {
	SourceURL  string   `json:"source_url"`
	SourceType string   `json:"source_type,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Normalize applies defaults and validates the request.
func (r *IngestRequest) Normalize() error {
	if r.SourceURL == "" {
		return errors.BadRequest("VALIDATION_ERROR", "source_url is required")
	}
	if r.SourceType == "" {
		r.SourceType = "web"
	}
	return nil
}

// IngestResult is the data of a completed ingestion.
type IngestResult struct {
	DocumentID      string   `json:"document_id"`
	PolicyID        string   `json:"policy_id"`
	Title           string   `json:"title"`
	ChunksCreated   int      `json:"chunks_created"`
	VectorsUpserted int      `json:"vectors_upserted"`
	ParsedFields    []string `json:"parsed_fields"`
	Degraded        []string `json:"degraded,omitempty"`
}

type chunkResponse struct {
	Chunks []map[string]interface{} `json:"chunks"`
}

type embeddingResponse struct {
	Embeddings []interface{} `json:"embeddings"`
}

type upsertResponse struct {
	Inserted *int `json:"inserted"`
}

// IngestPolicy runs fetch → parse → chunk → embed → upsert → tag.
func (uc *OrchestratorUsecase) IngestPolicy(ctx context.Context, req *IngestRequest) (*PipelineResult, error) {
	if err := uc.validate(ctx, PipelineIngest, req); err != nil {
		return nil, err
	}
	pc := uc.x.Begin(ctx, PipelineIngest)

	doc, err := Run[map[string]interface{}](ctx, pc, Step{
		Name:    "policy_fetch",
		Engine:  model.EnginePolicyFetching,
		Path:    "/schemes/fetch",
		Payload: map[string]interface{}{"source_url": req.SourceURL, "source_type": req.SourceType},
		Timeout: fetchTimeout,
	}).OrAbort("Policy fetch failed: ", http.StatusBadGateway)
	if err != nil {
		uc.x.Finish(ctx, pc, false)
		return nil, err
	}

	docID := firstString(doc, "document_id", "id")
	if docID == "" {
		docID = uuid.NewString()
	}
	policyID := firstString(doc, "policy_id", "scheme_id")
	if policyID == "" {
		policyID = docID
	}
	text := firstString(doc, "text", "content")
	title := firstString(doc, "title")
	if title == "" {
		title = req.SourceURL
	}

	if text == "" {
		uc.x.Finish(ctx, pc, false)
		return &PipelineResult{
			Success: false,
			Message: "Fetched document has no text content.",
			Data:    map[string]interface{}{"document_id": docID, "source_url": req.SourceURL},
		}, nil
	}

	parsed := Run[map[string]interface{}](ctx, pc, Step{
		Name:   "document_parsing",
		Engine: model.EngineDocUnderstanding,
		Path:   "/documents/parse",
		Payload: map[string]interface{}{
			"document_id": docID,
			"policy_id":   policyID,
			"title":       title,
			"text":        text,
		},
		Timeout: parseTimeout,
	}).OrDegrade(nil)

	chunkMeta := map[string]interface{}{"title": title, "source_url": req.SourceURL}
	if len(req.Tags) > 0 {
		chunkMeta["tags"] = req.Tags
	}
	chunks := Run[chunkResponse](ctx, pc, Step{
		Name:   "chunking",
		Engine: model.EngineChunks,
		Path:   "/chunks/create",
		Payload: map[string]interface{}{
			"document_id": docID,
			"policy_id":   policyID,
			"text":        text,
			"strategy":    chunkStrategy,
			"chunk_size":  chunkSize,
			"overlap":     chunkOverlap,
			"metadata":    chunkMeta,
		},
	}).OrDegrade(chunkResponse{}).Chunks

	// 没有分块无法继续，返回部分入库结果
	if len(chunks) == 0 {
		uc.x.Finish(ctx, pc, true)
		return &PipelineResult{
			Success: true,
			Message: "Document fetched but chunking failed. Partial ingestion.",
			Data: withDegraded(map[string]interface{}{
				"document_id":      docID,
				"policy_id":        policyID,
				"parsed":           len(parsed) > 0,
				"chunks_created":   0,
				"vectors_upserted": 0,
			}, pc.Degraded()),
		}, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = stringField(chunk, "content")
	}
	embedOut := Run[embeddingResponse](ctx, pc, Step{
		Name:    "embedding",
		Engine:  model.EngineNeuralNetwork,
		Path:    "/ai/embeddings",
		Payload: map[string]interface{}{"texts": texts},
		Timeout: embeddingTimeout,
	})
	embeddings := embedOut.OrDegrade(embeddingResponse{}).Embeddings

	vectorsUpserted := 0
	switch {
	case !embedOut.OK():
	case len(embeddings) == 0:
		pc.MarkDegraded("embedding", fmt.Errorf("no embeddings returned for %d chunks", len(chunks)))
	case len(embeddings) != len(chunks):
		pc.MarkDegraded("embedding_mismatch", fmt.Errorf("%d embeddings for %d chunks", len(embeddings), len(chunks)))
	default:
		vectors := make([]map[string]interface{}, len(chunks))
		for i, chunk := range chunks {
			chunkID := stringField(chunk, "chunk_id")
			if chunkID == "" {
				chunkID = fmt.Sprintf("%s_%d", docID, i)
			}
			vectors[i] = map[string]interface{}{
				"chunk_id":    chunkID,
				"document_id": docID,
				"policy_id":   policyID,
				"content":     texts[i],
				"embedding":   embeddings[i],
				"namespace":   policyNamespace,
				"metadata": map[string]interface{}{
					"title":       title,
					"chunk_index": i,
					"source_url":  req.SourceURL,
				},
			}
		}
		upsert := Run[upsertResponse](ctx, pc, Step{
			Name:    "vector_upsert",
			Engine:  model.EngineVectorDatabase,
			Path:    "/vectors/upsert/batch",
			Payload: map[string]interface{}{"vectors": vectors},
		})
		if upsert.OK() {
			vectorsUpserted = len(vectors)
			if upsert.Value.Inserted != nil {
				vectorsUpserted = *upsert.Value.Inserted
			}
		} else {
			upsert.OrDegrade(upsertResponse{})
		}
	}

	Run[map[string]interface{}](ctx, pc, Step{
		Name:   "metadata_tagging",
		Engine: model.EngineMetadata,
		Path:   "/metadata/process",
		Payload: map[string]interface{}{
			"user_id":    "policy:" + policyID,
			"name":       title,
			"state":      parsed["state"],
			"occupation": parsed["scheme_type"],
		},
	}).OrDegrade(nil)

	auditPayload := map[string]interface{}{
		"document_id":      docID,
		"policy_id":        policyID,
		"title":            title,
		"chunks_created":   len(chunks),
		"vectors_upserted": vectorsUpserted,
		"degraded":         emptyIfNilList(pc.Degraded()),
	}
	if len(req.Tags) > 0 {
		auditPayload["tags"] = req.Tags
	}
	uc.x.Audit(ctx, pc, model.AuditEventPolicyIngested, systemUserID, auditPayload)

	message := "Policy ingestion complete"
	if pc.IsDegraded() {
		message = "Policy ingestion complete with some steps degraded"
	}
	uc.x.Finish(ctx, pc, true)
	return &PipelineResult{
		Success: true,
		Message: message,
		Data: &IngestResult{
			DocumentID:      docID,
			PolicyID:        policyID,
			Title:           title,
			ChunksCreated:   len(chunks),
			VectorsUpserted: vectorsUpserted,
			ParsedFields:    sortedKeys(parsed),
			Degraded:        pc.Degraded(),
		},
	}, nil
}
