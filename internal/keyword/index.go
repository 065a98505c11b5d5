// Package keyword keeps a lexical (BM25) index over chunks, alongside the vector index.
package keyword

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// SearchOptions tune a keyword search. Nil means defaults.
type SearchOptions struct {
	// TitleBoost multiplies matches in the title field (file name and section title).
	// Values <= 1 search title and content as one.
	TitleBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits (default 2).
	FuzzyEnabled bool
	Fuzziness    int
	// Highlight names the fragment style, HighlightHTML or HighlightANSI. Empty disables
	// fragments.
	Highlight string
}

// Index is a keyword index over chunks.
type Index interface {
	// IndexChunks replaces every indexed chunk of doc with chunks.
	IndexChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error
	DeleteDocument(ctx context.Context, docID string) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Hit, error)
	DocCount() (uint64, error)
	Close() error
}

// Hit is a single keyword search match.
type Hit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	// Fragments are content excerpts with the matched terms marked up.
	Fragments []string `json:"fragments,omitempty"`
}
