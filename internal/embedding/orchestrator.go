package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retry"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// ChunkStore is the persistence the orchestrator needs.
type ChunkStore interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocumentStatus(ctx context.Context, doc *models.Document) error
	PendingChunks(ctx context.Context, docID string) ([]*models.Chunk, error)
	SaveEmbeddings(ctx context.Context, chunks []*models.Chunk) error
	CountDocumentChunks(ctx context.Context, docID string) (int, error)
}

// Orchestrator embeds a document's pending chunks in sequential batches and embeds queries.
type Orchestrator struct {
	store    ChunkStore
	provider Provider
	cfg      config.EmbeddingConfig
	backoff  retry.Policy
	cache    *Cache
	logger   *zap.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithBackoff replaces the exponential backoff derived from config.
func WithBackoff(p retry.Policy) OrchestratorOption {
	return func(o *Orchestrator) { o.backoff = p }
}

// WithCache sets the query embedding cache. A nil cache disables caching.
func WithCache(c *Cache) OrchestratorOption {
	return func(o *Orchestrator) { o.cache = c }
}

// WithLogger sets a logger for batch failures and run summaries.
func WithLogger(l *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator. By default it backs off exponentially from
// cfg.InitialBackoffMs and caches up to cfg.CacheSize query embeddings.
func NewOrchestrator(store ChunkStore, provider Provider, cfg config.EmbeddingConfig, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		provider: provider,
		cfg:      cfg,
		backoff: retry.Exponential{
			Initial: time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
			Max:     time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		},
	}
	if cfg.CacheSize > 0 {
		o.cache = NewCache(cfg.CacheSize)
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = utils.OrNop(o.logger)
	return o
}

// Model returns the embedding model name recorded on chunks.
func (o *Orchestrator) Model() string {
	return o.cfg.Model
}

// CountTokens counts text the way embedding costs are computed.
func (o *Orchestrator) CountTokens(text string) int {
	return CountTokens(o.provider, text)
}

// Cost returns the USD cost of embedding tokens.
func (o *Orchestrator) Cost(tokens int) float64 {
	return float64(tokens) / 1000 * o.cfg.CostPer1KTokens
}

// EmbedPending embeds every chunk of docID that has no vector, batchSize chunks per provider
// call (the configured batch size when batchSize <= 0). A batch that still fails after its
// retries is reported in the result and does not stop the remaining batches. The document
// ends completed only when every pending chunk received a vector; otherwise it is failed and
// a later call retries exactly the chunks still missing.
func (o *Orchestrator) EmbedPending(ctx context.Context, docID string, batchSize int) (*models.EmbedResult, error) {
	start := time.Now()
	if batchSize <= 0 {
		batchSize = o.cfg.BatchSize
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: embedding batch size must be positive", models.ErrValidation)
	}

	doc, err := o.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	pending, err := o.store.PendingChunks(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending chunks: %w", err)
	}

	result := &models.EmbedResult{DocumentID: docID, Total: len(pending)}
	if len(pending) == 0 {
		if err := o.completeIfChunked(ctx, doc); err != nil {
			return nil, err
		}
		result.Elapsed = time.Since(start)
		return result, nil
	}

	if doc.Status != models.StatusEmbedding {
		if err := doc.MarkEmbedding(); err != nil {
			return nil, err
		}
		if err := o.store.UpdateDocumentStatus(ctx, doc); err != nil {
			return nil, err
		}
	}

	for b, lo := 0, 0; lo < len(pending); b, lo = b+1, lo+batchSize {
		if err := ctx.Err(); err != nil {
			return result, o.finish(context.WithoutCancel(ctx), doc, result, start, err)
		}
		batch := pending[lo:min(lo+batchSize, len(pending))]
		tokens, err := o.embedBatch(ctx, batch)
		if err != nil {
			ids := make([]string, len(batch))
			for i, c := range batch {
				ids[i] = c.ID
			}
			o.logger.Warn("embedding batch failed",
				zap.String("document_id", docID),
				zap.Int("batch", b),
				zap.Int("chunks", len(batch)),
				zap.Error(err),
			)
			result.FailedBatches = append(result.FailedBatches, models.BatchFailure{
				Batch: b, ChunkIDs: ids, Error: err.Error(),
			})
			continue
		}
		result.Processed += len(batch)
		result.Tokens += tokens
	}

	return result, o.finish(ctx, doc, result, start, nil)
}

// finish records the document outcome. cause is returned when set, after the status is saved.
func (o *Orchestrator) finish(ctx context.Context, doc *models.Document, result *models.EmbedResult, start time.Time, cause error) error {
	result.Cost = o.Cost(result.Tokens)
	result.Elapsed = time.Since(start)

	var err error
	if result.Complete() {
		err = doc.MarkCompleted()
	} else {
		err = doc.MarkFailed(fmt.Sprintf("%d of %d chunks missing embeddings", result.Total-result.Processed, result.Total))
	}
	if err != nil {
		return err
	}
	if err := o.store.UpdateDocumentStatus(ctx, doc); err != nil {
		return err
	}

	o.logger.Info("document embedded",
		zap.String("document_id", doc.ID),
		zap.String("status", string(doc.Status)),
		zap.Int("processed", result.Processed),
		zap.Int("total", result.Total),
		zap.Int("tokens", result.Tokens),
		zap.Float64("cost", result.Cost),
		zap.Duration("elapsed", result.Elapsed),
	)
	return cause
}

// completeIfChunked marks a document completed when it has chunks, none pending, and is
// not completed yet, e.g. after a crash between the last batch and the status update.
func (o *Orchestrator) completeIfChunked(ctx context.Context, doc *models.Document) error {
	if doc.Status == models.StatusCompleted {
		return nil
	}
	n, err := o.store.CountDocumentChunks(ctx, doc.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if doc.Status != models.StatusEmbedding {
		if err := doc.MarkEmbedding(); err != nil {
			return err
		}
	}
	if err := doc.MarkCompleted(); err != nil {
		return err
	}
	return o.store.UpdateDocumentStatus(ctx, doc)
}

// embedBatch embeds one batch with retries and persists it in one transaction. On any
// failure the chunks are left without vectors.
func (o *Orchestrator) embedBatch(ctx context.Context, batch []*models.Chunk) (int, error) {
	texts := make([]string, len(batch))
	tokens := 0
	for i, c := range batch {
		texts[i] = c.Content
		tokens += CountTokens(o.provider, c.Content)
	}

	var raws []string
	err := retry.Do(ctx, o.cfg.MaxAttempts, o.backoff, func(attempt int) error {
		if attempt > 0 {
			o.logger.Debug("retrying embedding batch", zap.Int("attempt", attempt+1), zap.Int("chunks", len(batch)))
		}
		vectors, err := o.provider.CreateEmbeddings(ctx, o.cfg.Model, texts)
		if err != nil {
			return err
		}
		raws, err = o.encode(vectors, len(texts))
		return err
	})
	if err != nil {
		return 0, err
	}

	for i, c := range batch {
		c.AttachEmbedding(raws[i], o.cfg.Model)
	}
	if err := o.store.SaveEmbeddings(ctx, batch); err != nil {
		for _, c := range batch {
			c.ClearEmbedding()
		}
		return 0, fmt.Errorf("failed to persist batch: %w", err)
	}
	return tokens, nil
}

func (o *Orchestrator) encode(vectors [][]float32, want int) ([]string, error) {
	if len(vectors) != want {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts", models.ErrProviderTransient, len(vectors), want)
	}
	dims := o.provider.Dimensions()
	raws := make([]string, len(vectors))
	for i, v := range vectors {
		if dims > 0 && len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", models.ErrProviderTransient, i, len(v), dims)
		}
		raw, err := vector.EncodeRaw(v)
		if err != nil {
			return nil, fmt.Errorf("%w: vector %d: %v", models.ErrProviderTransient, i, err)
		}
		raws[i] = raw
	}
	return raws, nil
}

// EmbedQuery embeds a single query with one provider call. Results are cached per model.
func (o *Orchestrator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if o.cache != nil {
		if v, ok := o.cache.Get(o.cfg.Model, text); ok {
			return v, nil
		}
	}
	vectors, err := o.provider.CreateEmbeddings(ctx, o.cfg.Model, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned for query", models.ErrProviderTransient)
	}
	if o.cache != nil {
		o.cache.Set(o.cfg.Model, text, vectors[0])
	}
	return vectors[0], nil
}
