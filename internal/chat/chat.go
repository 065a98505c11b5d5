// Package chat answers questions over the indexed documents.
package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/guard"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/observability"
	"github.com/hyperjump/kotae/internal/prompt"
	"github.com/hyperjump/kotae/pkg/utils"
)

// NoResultsAnswer is returned when no chunk clears the similarity floor.
const NoResultsAnswer = "I could not find relevant information in the available documents to answer your question. " +
	"Please try rephrasing it or ask another question about the attached documents."

const defaultConversation = "default"

// Retriever finds the context for a question.
type Retriever interface {
	RetrieveWithMetadata(ctx context.Context, query string, topK int, minSimilarity float64) (*models.RetrievalSummary, error)
}

// AskRequest is one question.
type AskRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
	TopK           int    `json:"top_k,omitempty"`
}

// Source is a document cited in an answer; ID matches the [Source N] marker.
type Source struct {
	ID         int     `json:"id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	FileType   string  `json:"file_type"`
	ChunkID    string  `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
}

// AskMetrics is the per-answer summary returned to callers. Latencies are seconds.
type AskMetrics struct {
	TotalLatency     float64 `json:"total_latency"`
	RetrievalLatency float64 `json:"retrieval_latency"`
	LLMLatency       float64 `json:"llm_latency"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
	ChunksRetrieved  int     `json:"chunks_retrieved"`
}

// AskResponse is an answer, or the guard's message when the question was rejected.
type AskResponse struct {
	Answer         string          `json:"answer"`
	Sources        []Source        `json:"sources"`
	ConversationID string          `json:"conversation_id"`
	Rejected       *guard.Decision `json:"rejected,omitempty"`
	Metrics        *AskMetrics     `json:"metrics,omitempty"`
}

// Service runs guard, retrieval, generation and answer cleanup for each question.
type Service struct {
	guard     *guard.Guard
	retriever Retriever
	prompts   *prompt.Builder
	generator llm.Generator
	tracker   *observability.Tracker
	cfg       config.RetrievalConfig
	queryCost func(tokens int) float64
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithQueryCost sets how query embedding tokens are priced in the metrics log.
func WithQueryCost(fn func(tokens int) float64) Option {
	return func(s *Service) { s.queryCost = fn }
}

// NewService wires a question answering service.
func NewService(g *guard.Guard, r Retriever, p *prompt.Builder, gen llm.Generator, tracker *observability.Tracker, cfg config.RetrievalConfig, opts ...Option) *Service {
	s := &Service{guard: g, retriever: r, prompts: p, generator: gen, tracker: tracker, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// Ask answers one question. A guard rejection is returned as a normal response carrying
// the guard's message; retrieval and generation failures are returned as errors.
// Every question is recorded in the metrics log.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	resp := &AskResponse{Sources: []Source{}, ConversationID: req.ConversationID}
	if resp.ConversationID == "" {
		resp.ConversationID = defaultConversation
	}
	trace := s.tracker.Start(req.Question)

	start := time.Now()
	decision := s.guard.Validate(req.Question)
	trace.Stage(observability.StageGuardrails, time.Since(start))

	if !decision.Valid {
		s.logger.Warn("guardrail violation",
			zap.String("severity", string(decision.Severity)),
			zap.Strings("violations", decision.Violations()),
			zap.String("query", utils.Preview(req.Question, 100)),
		)
		s.record(ctx, trace, observability.Outcome{Violations: decision.Violations()})
		resp.Answer = decision.Message
		resp.Rejected = &decision
		return resp, nil
	}

	start = time.Now()
	summary, err := s.retriever.RetrieveWithMetadata(ctx, decision.Sanitized, req.TopK, s.cfg.MinSimilarityOrDefault())
	trace.Stage(observability.StageRetrieval, time.Since(start))
	if err != nil {
		s.record(ctx, trace, observability.Outcome{GuardrailsPassed: true, Err: err})
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	outcome := observability.Outcome{GuardrailsPassed: true, Retrieval: summary}
	if s.queryCost != nil {
		outcome.RetrievalCost = s.queryCost(summary.QueryTokens)
	}
	if len(summary.Results) == 0 {
		resp.Answer = NoResultsAnswer
		resp.Metrics = s.metrics(s.record(ctx, trace, outcome))
		return resp, nil
	}

	messages := s.prompts.Messages(decision.Sanitized, summary.Results)

	start = time.Now()
	completion, err := s.generator.Complete(ctx, llm.CompletionRequest{Messages: messages})
	trace.Stage(observability.StageLLM, time.Since(start))
	if err != nil {
		outcome.Err = err
		s.record(ctx, trace, outcome)
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	outcome.Completion = completion

	resp.Answer = s.guard.Sanitize(completion.Text)
	for i, r := range summary.Results {
		resp.Sources = append(resp.Sources, Source{
			ID:         i + 1,
			DocumentID: r.Document.ID,
			Filename:   r.Document.Filename,
			FileType:   r.Document.FileType,
			ChunkID:    r.Chunk.ID,
			ChunkIndex: r.Chunk.ChunkIndex,
			Similarity: r.Similarity,
		})
	}
	resp.Metrics = s.metrics(s.record(ctx, trace, outcome))
	return resp, nil
}

// record appends the question to the metrics log. A log write failure does not fail the answer.
func (s *Service) record(ctx context.Context, trace *observability.Trace, out observability.Outcome) *models.QueryMetrics {
	m, err := s.tracker.Finish(context.WithoutCancel(ctx), trace, out)
	if err != nil {
		s.logger.Warn("failed to record query metrics", zap.Error(err))
	}
	return m
}

func (s *Service) metrics(m *models.QueryMetrics) *AskMetrics {
	if m == nil {
		return nil
	}
	return &AskMetrics{
		TotalLatency:     utils.Round(m.TotalLatency, 3),
		RetrievalLatency: utils.Round(m.RetrievalLatency, 3),
		LLMLatency:       utils.Round(m.LLMLatency, 3),
		TotalTokens:      m.TotalTokens,
		Cost:             m.TotalCost,
		ChunksRetrieved:  m.ChunksRetrieved,
	}
}
