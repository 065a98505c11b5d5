package models

import "time"

// RetrievalResult is one document-deduplicated hit of a similarity search.
type RetrievalResult struct {
	Chunk       *Chunk    `json:"chunk"`
	Document    *Document `json:"document"`
	Similarity  float64   `json:"similarity"`
	Distance    float64   `json:"distance"`
	FullContext string    `json:"full_context"`
}

// RetrievalSummary wraps retrieval results with token and similarity statistics.
type RetrievalSummary struct {
	Results       []*RetrievalResult `json:"results"`
	TotalFound    int                `json:"total_found"`
	QueryTokens   int                `json:"query_tokens"`
	ContextTokens int                `json:"context_tokens"`
	AvgSimilarity float64            `json:"avg_similarity"`
	MinSimilarity float64            `json:"min_similarity"`
	MaxSimilarity float64            `json:"max_similarity"`
}

// BatchFailure describes one embedding batch that exhausted its retries.
type BatchFailure struct {
	Batch    int      `json:"batch"`
	ChunkIDs []string `json:"chunk_ids"`
	Error    string   `json:"error"`
}

// EmbedResult summarises one EmbedPending run for a document.
type EmbedResult struct {
	DocumentID    string         `json:"document_id"`
	Processed     int            `json:"processed"`
	Total         int            `json:"total"`
	Tokens        int            `json:"tokens"`
	Cost          float64        `json:"cost"`
	Elapsed       time.Duration  `json:"elapsed"`
	FailedBatches []BatchFailure `json:"failed_batches,omitempty"`
}

// Complete reports whether every pending chunk received a vector.
func (r *EmbedResult) Complete() bool {
	return r.Processed == r.Total
}

// SyncResult is the outcome of one vector index sync batch.
type SyncResult struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Pending int `json:"pending"`
}

// PipelineResult is the per-document outcome of a Coordinator run.
type PipelineResult struct {
	DocumentID string       `json:"document_id"`
	Source     string       `json:"source"`
	Skipped    bool         `json:"skipped"`
	Chunks     int          `json:"chunks"`
	Embed      *EmbedResult `json:"embed,omitempty"`
	Synced     int          `json:"synced"`
	Status     Status       `json:"status"`
	Err        error        `json:"-"`
	Error      string       `json:"error,omitempty"`
}
