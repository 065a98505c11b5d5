package observability

import (
	"context"

	"github.com/hyperjump/kotae/pkg/utils"
)

var recommendations = map[Stage]string{
	StageGuardrails: "Optimize regex patterns or consider validation cache",
	StageRetrieval:  "Optimize vector indices or reduce top_k",
	StageLLM:        "Consider faster model or implement response cache",
}

const noRecommendation = "No specific recommendation"

// Bottlenecks reports where answering time goes on average.
type Bottlenecks struct {
	AverageLatencies StageLatencies    `json:"average_latencies"`
	Breakdown        map[Stage]float64 `json:"time_breakdown_percent,omitempty"`
	Primary          string            `json:"primary_bottleneck,omitempty"`
	Recommendation   string            `json:"recommendation,omitempty"`
	Message          string            `json:"message,omitempty"`
}

// StageLatencies are average seconds per stage.
type StageLatencies struct {
	Total      float64 `json:"total"`
	Guardrails float64 `json:"guardrails"`
	Retrieval  float64 `json:"retrieval"`
	LLM        float64 `json:"llm"`
}

// Bottlenecks averages stage latencies over the whole log and names the slowest stage.
func (t *Tracker) Bottlenecks(ctx context.Context) (*Bottlenecks, error) {
	metrics, err := t.store.ListQueryMetrics(ctx, 0)
	if err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		return &Bottlenecks{Message: "Not enough data"}, nil
	}

	var total, guard, retrieval, gen float64
	for _, m := range metrics {
		total += m.TotalLatency
		guard += m.GuardrailsLatency
		retrieval += m.RetrievalLatency
		gen += m.LLMLatency
	}
	n := float64(len(metrics))
	avg := StageLatencies{Total: total / n, Guardrails: guard / n, Retrieval: retrieval / n, LLM: gen / n}

	b := &Bottlenecks{
		AverageLatencies: StageLatencies{
			Total:      utils.Round(avg.Total, 2),
			Guardrails: utils.Round(avg.Guardrails, 2),
			Retrieval:  utils.Round(avg.Retrieval, 2),
			LLM:        utils.Round(avg.LLM, 2),
		},
		Primary:        "unknown",
		Recommendation: noRecommendation,
	}
	if avg.Total <= 0 {
		return b, nil
	}

	b.Breakdown = map[Stage]float64{
		StageGuardrails: utils.Round(avg.Guardrails/avg.Total*100, 1),
		StageRetrieval:  utils.Round(avg.Retrieval/avg.Total*100, 1),
		StageLLM:        utils.Round(avg.LLM/avg.Total*100, 1),
	}
	best := -1.0
	for _, stage := range []Stage{StageGuardrails, StageRetrieval, StageLLM} {
		if b.Breakdown[stage] > best {
			best = b.Breakdown[stage]
			b.Primary = string(stage)
		}
	}
	b.Recommendation = recommendations[Stage(b.Primary)]
	return b, nil
}
