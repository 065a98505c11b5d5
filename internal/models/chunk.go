package models

import "time"

// Chunk is a contiguous window of a document's text, the unit of embedding and retrieval.
// Embedding holds the raw serialized vector; it is empty until the chunk has been embedded.
type Chunk struct {
	ID             string    `json:"id" db:"id"`
	DocumentID     string    `json:"document_id" db:"document_id"`
	ChunkIndex     int       `json:"chunk_index" db:"chunk_index"`
	Content        string    `json:"content" db:"content"`
	CharCount      int       `json:"char_count" db:"char_count"`
	TokenCount     int       `json:"token_count" db:"token_count"`
	SectionTitle   string    `json:"section_title,omitempty" db:"section_title"`
	Embedding      string    `json:"-" db:"embedding"`
	EmbeddingModel string    `json:"embedding_model,omitempty" db:"embedding_model"`
	PrevChunkID    string    `json:"prev_chunk_id,omitempty" db:"prev_chunk_id"`
	NextChunkID    string    `json:"next_chunk_id,omitempty" db:"next_chunk_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// HasEmbedding reports whether a vector has been attached.
func (c *Chunk) HasEmbedding() bool {
	return c.Embedding != ""
}

// AttachEmbedding sets the serialized vector and the model that produced it.
func (c *Chunk) AttachEmbedding(raw, model string) {
	c.Embedding = raw
	c.EmbeddingModel = model
}

// ClearEmbedding drops the vector so the chunk is pending again.
func (c *Chunk) ClearEmbedding() {
	c.Embedding = ""
	c.EmbeddingModel = ""
}
