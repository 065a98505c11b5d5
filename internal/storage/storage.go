// Package storage defines the persistence interface for documents, chunks, and the query log.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage defines document, chunk and query-metrics persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocumentStatus(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Chunk operations
	ReplaceChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	PendingChunks(ctx context.Context, docID string) ([]*models.Chunk, error)
	SaveEmbeddings(ctx context.Context, chunks []*models.Chunk) error
	InvalidateEmbeddings(ctx context.Context, chunkIDs []string, reason string) error

	// Query log
	AppendQueryMetrics(ctx context.Context, m *models.QueryMetrics) error
	ListQueryMetrics(ctx context.Context, lastN int) ([]*models.QueryMetrics, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountDocumentsByStatus(ctx context.Context) (map[models.Status]int64, error)
	CountChunks(ctx context.Context) (int64, error)
	CountDocumentChunks(ctx context.Context, docID string) (int, error)
	CountEmbeddedChunks(ctx context.Context) (int64, error)

	Close() error
}
