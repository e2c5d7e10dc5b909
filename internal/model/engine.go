package model

import "time"

// Engine keys, as configured under engines.ports / engines.urls.
const (
	EngineAPIGateway         = "api_gateway"
	EngineLoginRegister      = "login_register"
	EngineIdentity           = "identity"
	EngineRawDataStore       = "raw_data_store"
	EngineMetadata           = "metadata"
	EngineProcessedMetadata  = "processed_metadata"
	EngineVectorDatabase     = "vector_database"
	EngineNeuralNetwork      = "neural_network"
	EngineAnomalyDetection   = "anomaly_detection"
	EngineChunks             = "chunks"
	EnginePolicyFetching     = "policy_fetching"
	EngineJSONUserInfo       = "json_user_info"
	EngineAnalyticsWarehouse = "analytics_warehouse"
	EngineDashboardBFF       = "dashboard_bff"
	EngineEligibilityRules   = "eligibility_rules"
	EngineDeadlineMonitoring = "deadline_monitoring"
	EngineSimulation         = "simulation"
	EngineGovDataSync        = "gov_data_sync"
	EngineTrustScoring       = "trust_scoring"
	EngineSpeechInterface    = "speech_interface"
	EngineDocUnderstanding   = "doc_understanding"
)

// EngineRequest is one downstream call.
// Payload is sent as the JSON body for POST/PUT/PATCH and as query parameters otherwise.
type EngineRequest struct {
	Engine        string
	Path          string
	Method        string
	Payload       interface{}
	RequestID     string
	Authorization string
	Timeout       time.Duration
}

// Engine health states reported by /engines/health.
const (
	EngineHealthy     = "healthy"
	EngineUnreachable = "unreachable"
)

// EngineHealth is the probe result for one engine.
type EngineHealth struct {
	Engine string   `json:"engine"`
	Status string   `json:"status"`
	Port   string   `json:"port"`
	Uptime *float64 `json:"uptime,omitempty"`
}

// ProxyRoute forwards /api/v1/<Prefix>/* to the same path on Engine.
type ProxyRoute struct {
	Prefix string
	Engine string
	Public bool
}

// ProxyRoutes is the transparent proxy table.
var ProxyRoutes = []ProxyRoute{
	{Prefix: "auth", Engine: EngineLoginRegister, Public: true},
	{Prefix: "identity", Engine: EngineIdentity},
	{Prefix: "metadata", Engine: EngineMetadata},
	{Prefix: "eligibility", Engine: EngineEligibilityRules},
	{Prefix: "schemes", Engine: EnginePolicyFetching, Public: true},
	{Prefix: "policies", Engine: EnginePolicyFetching, Public: true},
	{Prefix: "simulate", Engine: EngineSimulation},
	{Prefix: "deadlines", Engine: EngineDeadlineMonitoring},
	{Prefix: "ai", Engine: EngineNeuralNetwork},
	{Prefix: "dashboard", Engine: EngineDashboardBFF},
	{Prefix: "documents", Engine: EngineDocUnderstanding},
	{Prefix: "voice", Engine: EngineSpeechInterface},
	{Prefix: "analytics", Engine: EngineAnalyticsWarehouse},
	{Prefix: "trust", Engine: EngineTrustScoring},
	{Prefix: "profile", Engine: EngineJSONUserInfo},
	{Prefix: "raw-data", Engine: EngineRawDataStore},
	{Prefix: "processed-metadata", Engine: EngineProcessedMetadata},
	{Prefix: "vectors", Engine: EngineVectorDatabase},
	{Prefix: "anomaly", Engine: EngineAnomalyDetection},
	{Prefix: "chunks", Engine: EngineChunks},
	{Prefix: "gov-data", Engine: EngineGovDataSync},
}
