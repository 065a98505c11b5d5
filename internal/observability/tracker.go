// Package observability records per-question metrics and summarises them.
package observability

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Stage names a timed step of answering a question.
type Stage string

const (
	StageGuardrails Stage = "guardrails"
	StageRetrieval  Stage = "retrieval"
	StageLLM        Stage = "llm"
)

// MetricsStore is the append-only question log.
type MetricsStore interface {
	AppendQueryMetrics(ctx context.Context, m *models.QueryMetrics) error
	ListQueryMetrics(ctx context.Context, lastN int) ([]*models.QueryMetrics, error)
}

// Tracker times questions and writes one metrics entry per question.
type Tracker struct {
	store  MetricsStore
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker writing to store.
func NewTracker(store MetricsStore, opts ...Option) *Tracker {
	t := &Tracker{store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = utils.OrNop(t.logger)
	return t
}

// Trace accumulates stage timings for one question.
type Trace struct {
	Question string
	Started  time.Time

	mu     sync.Mutex
	stages map[Stage]time.Duration
}

// Start begins tracking question.
func (t *Tracker) Start(question string) *Trace {
	t.logger.Info("starting query tracking",
		zap.String("question_preview", utils.Preview(question, 100)),
		zap.Int("question_length", len([]rune(question))),
	)
	return &Trace{Question: question, Started: t.now(), stages: make(map[Stage]time.Duration)}
}

// Stage records how long a step took.
func (tr *Trace) Stage(name Stage, d time.Duration) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.stages[name] = d
}

// Duration returns the recorded time of a step, zero when it did not run.
func (tr *Trace) Duration(name Stage) time.Duration {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.stages[name]
}

// Outcome is what a question produced.
type Outcome struct {
	GuardrailsPassed bool
	Violations       []string
	Retrieval        *models.RetrievalSummary
	RetrievalCost    float64
	Completion       *llm.Completion
	Err              error
}

// Finish builds the metrics entry for trace and appends it to the log.
func (t *Tracker) Finish(ctx context.Context, tr *Trace, out Outcome) (*models.QueryMetrics, error) {
	violations := out.Violations
	if violations == nil {
		violations = []string{}
	}
	m := &models.QueryMetrics{
		Timestamp:            tr.Started,
		Question:             tr.Question,
		GuardrailsLatency:    tr.Duration(StageGuardrails).Seconds(),
		RetrievalLatency:     tr.Duration(StageRetrieval).Seconds(),
		LLMLatency:           tr.Duration(StageLLM).Seconds(),
		TotalLatency:         t.now().Sub(tr.Started).Seconds(),
		RetrievalCost:        out.RetrievalCost,
		Success:              out.Err == nil,
		GuardrailsPassed:     out.GuardrailsPassed,
		GuardrailsViolations: violations,
	}
	if out.Err != nil {
		m.Error = out.Err.Error()
	}
	if r := out.Retrieval; r != nil {
		m.QueryTokens = r.QueryTokens
		m.ContextTokens = r.ContextTokens
		m.ChunksRetrieved = r.TotalFound
		m.AvgSimilarity = r.AvgSimilarity
	}
	if c := out.Completion; c != nil {
		m.PromptTokens = c.PromptTokens
		m.CompletionTokens = c.CompletionTokens
		m.TotalTokens = c.TotalTokens
		m.LLMCost = c.Cost
	}
	m.TotalCost = utils.Round(m.RetrievalCost+m.LLMCost, 6)

	if err := t.store.AppendQueryMetrics(ctx, m); err != nil {
		return m, err
	}

	t.logger.Info("query completed",
		zap.Float64("total_latency", utils.Round(m.TotalLatency, 3)),
		zap.Int("chunks_retrieved", m.ChunksRetrieved),
		zap.Float64("avg_similarity", m.AvgSimilarity),
		zap.Float64("llm_cost", m.LLMCost),
		zap.Bool("success", m.Success),
		zap.Bool("guardrails_passed", m.GuardrailsPassed),
	)
	return m, nil
}
