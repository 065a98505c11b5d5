// Package models defines core data structures for documents, chunks, retrieval results, and query metrics.
package models

import (
	"fmt"
	"time"
)

// Status is a document's position in the processing state machine.
type Status string

const (
	StatusUploaded  Status = "uploaded"
	StatusChunked   Status = "chunked"
	StatusEmbedding Status = "embedding"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// transitions lists the states reachable from each state. Re-chunking (any → chunked)
// is a full delete-and-recreate of the document's chunks.
var transitions = map[Status][]Status{
	StatusUploaded:  {StatusChunked, StatusFailed},
	StatusChunked:   {StatusChunked, StatusEmbedding, StatusFailed},
	StatusEmbedding: {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusChunked, StatusFailed},
	StatusFailed:    {StatusChunked, StatusEmbedding, StatusFailed},
}

// CanTransition reports whether a document in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Document is an ingested source. Content and metadata are fixed at ingestion;
// only the processing fields change afterwards, through the Mark* methods.
type Document struct {
	ID             string     `json:"id" db:"id"`
	Filename       string     `json:"filename" db:"filename"`
	FileType       string     `json:"file_type" db:"file_type"`
	FileSize       int64      `json:"file_size" db:"file_size"`
	Content        string     `json:"-" db:"content"`
	ContentPreview string     `json:"content_preview" db:"content_preview"`
	Language       string     `json:"language,omitempty" db:"language"`
	NumPages       int        `json:"num_pages,omitempty" db:"num_pages"`
	NumWords       int        `json:"num_words" db:"num_words"`
	NumChars       int        `json:"num_chars" db:"num_chars"`
	Status         Status     `json:"status" db:"status"`
	ErrorMessage   string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// IsProcessed reports whether the document finished the pipeline.
func (d *Document) IsProcessed() bool {
	return d.Status == StatusCompleted
}

func (d *Document) transition(next Status) error {
	from := d.Status
	if from == "" {
		from = StatusUploaded
	}
	if !from.CanTransition(next) {
		return fmt.Errorf("%w: document %s cannot move from %s to %s", ErrInvalidTransition, d.ID, from, next)
	}
	d.Status = next
	d.UpdatedAt = time.Now()
	return nil
}

// MarkChunked records that the document's chunks were (re)created.
func (d *Document) MarkChunked() error {
	if err := d.transition(StatusChunked); err != nil {
		return err
	}
	d.ErrorMessage = ""
	d.ProcessedAt = nil
	return nil
}

// MarkEmbedding records that embedding of pending chunks has started.
func (d *Document) MarkEmbedding() error {
	return d.transition(StatusEmbedding)
}

// MarkCompleted records that every chunk carries a vector.
func (d *Document) MarkCompleted() error {
	if err := d.transition(StatusCompleted); err != nil {
		return err
	}
	now := time.Now()
	d.ErrorMessage = ""
	d.ProcessedAt = &now
	return nil
}

// MarkFailed records a processing failure. A completed document fails when one of its
// stored vectors is found to be unusable.
func (d *Document) MarkFailed(reason string) error {
	if err := d.transition(StatusFailed); err != nil {
		return err
	}
	d.ErrorMessage = reason
	return nil
}
