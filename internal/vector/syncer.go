package vector

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Quarantine clears embeddings that cannot be indexed so their chunks are re-embedded
// instead of blocking the sync backlog.
type Quarantine interface {
	InvalidateEmbeddings(ctx context.Context, chunkIDs []string, reason string) error
}

// Syncer copies chunk embeddings into the index in bounded batches.
type Syncer struct {
	index      Index
	quarantine Quarantine
	dimensions int
	logger     *zap.Logger
	mu         sync.Mutex
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithLogger sets a logger for skipped rows and batch summaries.
func WithLogger(l *zap.Logger) SyncerOption {
	return func(s *Syncer) { s.logger = l }
}

// WithQuarantine sets where malformed embeddings are reported.
func WithQuarantine(q Quarantine) SyncerOption {
	return func(s *Syncer) { s.quarantine = q }
}

// WithDimensions rejects vectors whose length differs from d.
func WithDimensions(d int) SyncerOption {
	return func(s *Syncer) { s.dimensions = d }
}

// NewSyncer creates a syncer over index.
func NewSyncer(index Index, opts ...SyncerOption) *Syncer {
	s := &Syncer{index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Sync indexes up to batchSize pending chunks. Rows whose stored vector cannot be parsed are
// skipped and, when a Quarantine is set, invalidated.
func (s *Syncer) Sync(ctx context.Context, batchSize int) (*models.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked(ctx, batchSize)
}

func (s *Syncer) syncLocked(ctx context.Context, batchSize int) (*models.SyncResult, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: sync batch size must be positive", models.ErrValidation)
	}
	candidates, err := s.index.Pending(ctx, batchSize)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(candidates))
	var bad []string
	for _, c := range candidates {
		vec, err := DecodeRaw(c.Raw)
		if err == nil && s.dimensions > 0 && len(vec) != s.dimensions {
			err = fmt.Errorf("%w: expected %d dimensions, got %d", models.ErrIntegrity, s.dimensions, len(vec))
		}
		if err != nil {
			s.logger.Warn("skipping chunk with unusable embedding",
				zap.String("chunk_id", c.ChunkID),
				zap.String("document_id", c.DocumentID),
				zap.Error(err),
			)
			bad = append(bad, c.ChunkID)
			continue
		}
		entries = append(entries, Entry{ChunkID: c.ChunkID, DocumentID: c.DocumentID, Vector: vec})
	}

	synced, err := s.index.Add(ctx, entries)
	if err != nil {
		return nil, err
	}

	if len(bad) > 0 && s.quarantine != nil {
		if err := s.quarantine.InvalidateEmbeddings(ctx, bad, "stored embedding could not be indexed"); err != nil {
			return nil, fmt.Errorf("failed to quarantine malformed embeddings: %w", err)
		}
	}

	pending, err := s.index.PendingCount(ctx)
	if err != nil {
		return nil, err
	}
	return &models.SyncResult{Synced: synced, Skipped: len(bad), Pending: pending}, nil
}

// Drain calls Sync until a batch writes nothing and returns the accumulated counts.
// A batch made only of quarantined rows does not stop the drain, since those rows
// have left the candidate set.
func (s *Syncer) Drain(ctx context.Context, batchSize int) (*models.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := &models.SyncResult{}
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := s.syncLocked(ctx, batchSize)
		if err != nil {
			return total, err
		}
		total.Synced += res.Synced
		total.Skipped += res.Skipped
		total.Pending = res.Pending
		if res.Synced == 0 && (res.Skipped == 0 || s.quarantine == nil) {
			break
		}
	}
	if total.Synced > 0 || total.Skipped > 0 {
		s.logger.Info("vector index synced",
			zap.Int("synced", total.Synced),
			zap.Int("skipped", total.Skipped),
			zap.Int("pending", total.Pending),
		)
	}
	return total, nil
}
