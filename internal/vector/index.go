// Package vector provides the vector codec, cosine distance, and the similarity index
// that embedded chunks are synced into.
package vector

import "context"

// Candidate is a chunk that has a raw embedding but no index entry yet.
type Candidate struct {
	ChunkID    string
	DocumentID string
	Raw        string
}

// Entry is an index row ready to be written.
type Entry struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
}

// Hit is a single nearest-neighbour result. Distance is cosine distance in [0, 2].
type Hit struct {
	ChunkID    string
	DocumentID string
	Distance   float64
}

// Index is a similarity-searchable projection of chunk embeddings.
type Index interface {
	// Pending returns up to limit chunks that are embedded but not yet indexed.
	Pending(ctx context.Context, limit int) ([]Candidate, error)
	// PendingCount returns the size of the sync backlog.
	PendingCount(ctx context.Context) (int, error)
	// Add writes entries, ignoring chunks that are already indexed or no longer exist,
	// and returns the number of rows actually written.
	Add(ctx context.Context, entries []Entry) (int, error)
	// Search returns up to k entries within maxDistance of query, nearest first.
	Search(ctx context.Context, query []float32, k int, maxDistance float64) ([]Hit, error)
	// Size returns the number of indexed entries.
	Size(ctx context.Context) (int, error)
}
