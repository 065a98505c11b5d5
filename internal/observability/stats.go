package observability

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Statistics summarises a window of the question log.
type Statistics struct {
	TotalQueries      int             `json:"total_queries"`
	SuccessfulQueries int             `json:"successful_queries"`
	FailedQueries     int             `json:"failed_queries"`
	SuccessRate       float64         `json:"success_rate"`
	Latency           LatencyStats    `json:"latency"`
	Tokens            TokenStats      `json:"tokens"`
	Cost              CostStats       `json:"cost"`
	Retrieval         RetrievalStats  `json:"retrieval"`
	Guardrails        GuardrailsStats `json:"guardrails"`
	Message           string          `json:"message,omitempty"`
}

// LatencyStats are in seconds.
type LatencyStats struct {
	AvgTotal     float64 `json:"avg_total"`
	AvgLLM       float64 `json:"avg_llm"`
	AvgRetrieval float64 `json:"avg_retrieval"`
	MinTotal     float64 `json:"min_total"`
	MaxTotal     float64 `json:"max_total"`
}

type TokenStats struct {
	Total         int     `json:"total"`
	AvgPerQuery   float64 `json:"avg_per_query"`
	AvgPrompt     float64 `json:"avg_prompt"`
	AvgCompletion float64 `json:"avg_completion"`
}

// CostStats are in USD.
type CostStats struct {
	Total                 float64 `json:"total"`
	AvgPerQuery           float64 `json:"avg_per_query"`
	EstimatedPer1KQueries float64 `json:"estimated_per_1k_queries"`
}

type RetrievalStats struct {
	AvgChunksRetrieved float64 `json:"avg_chunks_retrieved"`
	AvgSimilarity      float64 `json:"avg_similarity"`
}

type GuardrailsStats struct {
	Violations    int     `json:"violations"`
	ViolationRate float64 `json:"violation_rate"`
}

// Statistics summarises the last lastN questions, or all of them when lastN <= 0.
func (t *Tracker) Statistics(ctx context.Context, lastN int) (*Statistics, error) {
	metrics, err := t.store.ListQueryMetrics(ctx, lastN)
	if err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		return &Statistics{Message: "No metrics recorded yet"}, nil
	}

	n := float64(len(metrics))
	s := &Statistics{TotalQueries: len(metrics)}
	var latTotal, latLLM, latRetrieval, prompt, completion, cost, chunks, similarity float64
	s.Latency.MinTotal = metrics[0].TotalLatency
	s.Latency.MaxTotal = metrics[0].TotalLatency
	for _, m := range metrics {
		if m.Success {
			s.SuccessfulQueries++
		}
		if !m.GuardrailsPassed {
			s.Guardrails.Violations++
		}
		latTotal += m.TotalLatency
		latLLM += m.LLMLatency
		latRetrieval += m.RetrievalLatency
		s.Latency.MinTotal = min(s.Latency.MinTotal, m.TotalLatency)
		s.Latency.MaxTotal = max(s.Latency.MaxTotal, m.TotalLatency)
		s.Tokens.Total += m.TotalTokens
		prompt += float64(m.PromptTokens)
		completion += float64(m.CompletionTokens)
		cost += m.TotalCost
		chunks += float64(m.ChunksRetrieved)
		similarity += m.AvgSimilarity
	}
	s.FailedQueries = s.TotalQueries - s.SuccessfulQueries
	s.SuccessRate = utils.Round(float64(s.SuccessfulQueries)/n*100, 2)

	s.Latency.AvgTotal = utils.Round(latTotal/n, 2)
	s.Latency.AvgLLM = utils.Round(latLLM/n, 2)
	s.Latency.AvgRetrieval = utils.Round(latRetrieval/n, 2)

	s.Tokens.AvgPerQuery = utils.Round(float64(s.Tokens.Total)/n, 0)
	s.Tokens.AvgPrompt = utils.Round(prompt/n, 0)
	s.Tokens.AvgCompletion = utils.Round(completion/n, 0)

	s.Cost.Total = utils.Round(cost, 4)
	s.Cost.AvgPerQuery = utils.Round(cost/n, 6)
	s.Cost.EstimatedPer1KQueries = utils.Round(cost/n*1000, 2)

	s.Retrieval.AvgChunksRetrieved = utils.Round(chunks/n, 1)
	s.Retrieval.AvgSimilarity = utils.Round(similarity/n, 3)

	s.Guardrails.ViolationRate = utils.Round(float64(s.Guardrails.Violations)/n*100, 2)
	return s, nil
}

// Recent returns the last n questions in the order they were asked.
func (t *Tracker) Recent(ctx context.Context, n int) ([]*models.QueryMetrics, error) {
	if n <= 0 {
		n = 10
	}
	metrics, err := t.store.ListQueryMetrics(ctx, n)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = []*models.QueryMetrics{}
	}
	return metrics, nil
}
