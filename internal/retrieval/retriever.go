// Package retrieval finds the chunks most similar to a query, one per source document.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// QueryEmbedder embeds queries and counts tokens the way the embedding provider does.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	CountTokens(text string) int
}

// Store resolves index hits to chunks and documents.
type Store interface {
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
}

// Retriever runs similarity search over the vector index.
type Retriever struct {
	index    vector.Index
	store    Store
	embedder QueryEmbedder
	cfg      config.RetrievalConfig
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// New creates a retriever. cfg supplies defaults for top_k and the context window.
func New(index vector.Index, store Store, embedder QueryEmbedder, cfg config.RetrievalConfig, opts ...Option) *Retriever {
	r := &Retriever{index: index, store: store, embedder: embedder, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = utils.OrNop(r.logger)
	return r
}

// Retrieve returns up to topK chunks whose similarity to query is at least minSimilarity,
// best first, with at most one chunk per document. topK <= 0 uses the configured default.
// An empty index or no chunk above the floor yields an empty result.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, minSimilarity float64) ([]*models.RetrievalResult, error) {
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", models.ErrValidation)
	}
	if minSimilarity < 0 || minSimilarity > 1 {
		return nil, fmt.Errorf("%w: min_similarity must be in [0, 1], got %v", models.ErrValidation, minSimilarity)
	}

	size, err := r.index.Size(ctx)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []*models.RetrievalResult{}, nil
	}

	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	// Over-fetch so that enough hits survive per-document deduplication.
	hits, err := r.index.Search(ctx, queryVec, 2*topK, vector.MaxDistanceForSimilarity(minSimilarity))
	if err != nil {
		return nil, err
	}

	results := make([]*models.RetrievalResult, 0, topK)
	seen := make(map[string]bool, len(hits))
	for _, hit := range hits {
		if len(results) >= topK {
			break
		}
		if seen[hit.DocumentID] {
			continue
		}

		chunk, err := r.store.GetChunk(ctx, hit.ChunkID)
		if errors.Is(err, models.ErrNotFound) {
			// Deleted between search and lookup.
			continue
		}
		if err != nil {
			return nil, err
		}
		doc, err := r.store.GetDocument(ctx, hit.DocumentID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		seen[hit.DocumentID] = true

		fullContext := chunk.Content
		if r.cfg.ContextWindow > 0 {
			if fullContext, err = r.ChunkContext(ctx, chunk.ID, r.cfg.ContextWindow); err != nil {
				return nil, err
			}
		}

		results = append(results, &models.RetrievalResult{
			Chunk:       chunk,
			Document:    doc,
			Similarity:  vector.SimilarityFromDistance(hit.Distance),
			Distance:    hit.Distance,
			FullContext: fullContext,
		})
	}

	r.logger.Debug("retrieval finished",
		zap.Int("hits", len(hits)),
		zap.Int("results", len(results)),
		zap.Int("top_k", topK),
		zap.Float64("min_similarity", minSimilarity),
	)
	return results, nil
}

// RetrieveWithMetadata runs Retrieve and adds token counts and similarity statistics.
func (r *Retriever) RetrieveWithMetadata(ctx context.Context, query string, topK int, minSimilarity float64) (*models.RetrievalSummary, error) {
	results, err := r.Retrieve(ctx, query, topK, minSimilarity)
	if err != nil {
		return nil, err
	}

	summary := &models.RetrievalSummary{
		Results:     results,
		TotalFound:  len(results),
		QueryTokens: r.embedder.CountTokens(query),
	}
	if len(results) == 0 {
		return summary, nil
	}

	var sum float64
	summary.MinSimilarity = results[0].Similarity
	summary.MaxSimilarity = results[0].Similarity
	for _, res := range results {
		sum += res.Similarity
		summary.MinSimilarity = min(summary.MinSimilarity, res.Similarity)
		summary.MaxSimilarity = max(summary.MaxSimilarity, res.Similarity)
		summary.ContextTokens += r.embedder.CountTokens(res.FullContext)
	}
	summary.AvgSimilarity = utils.Round(sum/float64(len(results)), 3)
	return summary, nil
}

// ChunkContext returns the chunk's content joined with up to window neighbours on each side,
// following the prev/next links.
func (r *Retriever) ChunkContext(ctx context.Context, chunkID string, window int) (string, error) {
	chunk, err := r.store.GetChunk(ctx, chunkID)
	if err != nil {
		return "", err
	}

	var before []string
	for cur, i := chunk, 0; i < window && cur.PrevChunkID != ""; i++ {
		prev, err := r.store.GetChunk(ctx, cur.PrevChunkID)
		if errors.Is(err, models.ErrNotFound) {
			break
		}
		if err != nil {
			return "", err
		}
		before = append([]string{prev.Content}, before...)
		cur = prev
	}

	var after []string
	for cur, i := chunk, 0; i < window && cur.NextChunkID != ""; i++ {
		next, err := r.store.GetChunk(ctx, cur.NextChunkID)
		if errors.Is(err, models.ErrNotFound) {
			break
		}
		if err != nil {
			return "", err
		}
		after = append(after, next.Content)
		cur = next
	}

	parts := append(append(before, chunk.Content), after...)
	return strings.Join(parts, "\n"), nil
}
