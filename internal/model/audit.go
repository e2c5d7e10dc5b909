package model

import "time"

// AuditEventType identifies which pipeline produced an audit record.
type AuditEventType string

const (
	AuditEventRAGQuery           AuditEventType = "RAG_QUERY"
	AuditEventUserOnboarded      AuditEventType = "USER_ONBOARDED"
	AuditEventEligibilityChecked AuditEventType = "ELIGIBILITY_CHECKED"
	AuditEventPolicyIngested     AuditEventType = "POLICY_INGESTED"
	AuditEventVoiceQuery         AuditEventType = "VOICE_QUERY"
	AuditEventSimulationRun      AuditEventType = "SIMULATION_RUN"
)

// String returns the string representation of AuditEventType
func (e AuditEventType) String() string {
	return string(e)
}

// AuditSourceEngine is the source_engine value stamped on every raw event.
const AuditSourceEngine = "orchestrator"

// AuditRecord is the summary of one finished pipeline.
type AuditRecord struct {
	EventType AuditEventType         `json:"event_type"`
	UserID    string                 `json:"user_id"`
	Payload   map[string]interface{} `json:"payload"`
	RequestID string                 `json:"request_id"`
	CreatedAt time.Time              `json:"created_at"`
}
