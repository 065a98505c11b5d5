package models

import "time"

// QueryMetrics is one entry of the append-only question log. Latencies are seconds.
type QueryMetrics struct {
	ID                   int64     `json:"id" db:"id"`
	Timestamp            time.Time `json:"timestamp" db:"timestamp"`
	Question             string    `json:"question" db:"question"`
	GuardrailsLatency    float64   `json:"guardrails_latency" db:"guardrails_latency"`
	RetrievalLatency     float64   `json:"retrieval_latency" db:"retrieval_latency"`
	LLMLatency           float64   `json:"llm_latency" db:"llm_latency"`
	TotalLatency         float64   `json:"total_latency" db:"total_latency"`
	QueryTokens          int       `json:"query_tokens" db:"query_tokens"`
	ContextTokens        int       `json:"context_tokens" db:"context_tokens"`
	PromptTokens         int       `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens     int       `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens          int       `json:"total_tokens" db:"total_tokens"`
	RetrievalCost        float64   `json:"retrieval_cost" db:"retrieval_cost"`
	LLMCost              float64   `json:"llm_cost" db:"llm_cost"`
	TotalCost            float64   `json:"total_cost" db:"total_cost"`
	ChunksRetrieved      int       `json:"chunks_retrieved" db:"chunks_retrieved"`
	AvgSimilarity        float64   `json:"avg_similarity" db:"avg_similarity"`
	Success              bool      `json:"success" db:"success"`
	Error                string    `json:"error,omitempty" db:"error"`
	GuardrailsPassed     bool      `json:"guardrails_passed" db:"guardrails_passed"`
	GuardrailsViolations []string  `json:"guardrails_violations" db:"guardrails_violations"`
}
