// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// SQLiteStorage implements Storage using SQLite. The connection is opened through
// vector.DriverName so the same database serves similarity search.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := dbPath + "?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open(vector.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// DB exposes the connection pool for the vector index.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

const documentColumns = `id, filename, file_type, file_size, content, content_preview, language,
	num_pages, num_words, num_chars, status, error_message, created_at, updated_at, processed_at`

const chunkColumns = `id, document_id, chunk_index, content, char_count, token_count, section_title,
	embedding, embedding_model, prev_chunk_id, next_chunk_id, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func scanDocument(row scanner) (*models.Document, error) {
	var doc models.Document
	var preview, language, status, errMsg sql.NullString
	var createdAt, updatedAt, processedAt sql.NullTime
	err := row.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.Content, &preview, &language,
		&doc.NumPages, &doc.NumWords, &doc.NumChars, &status, &errMsg, &createdAt, &updatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	doc.ContentPreview = preview.String
	doc.Language = language.String
	doc.Status = models.Status(status.String)
	doc.ErrorMessage = errMsg.String
	doc.CreatedAt = createdAt.Time
	doc.UpdatedAt = updatedAt.Time
	if processedAt.Valid {
		t := processedAt.Time
		doc.ProcessedAt = &t
	}
	return &doc, nil
}

func scanChunk(row scanner) (*models.Chunk, error) {
	var c models.Chunk
	var title, embedding, model, prev, next sql.NullString
	var createdAt sql.NullTime
	err := row.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.CharCount, &c.TokenCount, &title,
		&embedding, &model, &prev, &next, &createdAt)
	if err != nil {
		return nil, err
	}
	c.SectionTitle = title.String
	c.Embedding = embedding.String
	c.EmbeddingModel = model.String
	c.PrevChunkID = prev.String
	c.NextChunkID = next.String
	c.CreatedAt = createdAt.Time
	return &c, nil
}

// CreateDocument inserts a document. A document without a status starts as uploaded.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = models.StatusUploaded
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.FileType, doc.FileSize, doc.Content, nullString(doc.ContentPreview),
		nullString(doc.Language), doc.NumPages, doc.NumWords, doc.NumChars, string(doc.Status),
		nullString(doc.ErrorMessage), doc.CreatedAt, doc.UpdatedAt, nullTime(doc.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocumentStatus persists the processing fields of doc.
func (s *SQLiteStorage) UpdateDocumentStatus(ctx context.Context, doc *models.Document) error {
	return updateStatus(ctx, s.db, doc)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateStatus(ctx context.Context, db execer, doc *models.Document) error {
	doc.UpdatedAt = time.Now()
	result, err := db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error_message = ?, updated_at = ?, processed_at = ?
		 WHERE id = ?`,
		string(doc.Status), nullString(doc.ErrorMessage), doc.UpdatedAt, nullTime(doc.ProcessedAt), doc.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %s", models.ErrNotFound, doc.ID)
	}
	return nil
}

// DeleteDocument removes a document with its chunks and index entries.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE document_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	return tx.Commit()
}

// ListDocuments returns documents, newest first, with offset and limit.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ReplaceChunks deletes every chunk and index entry of doc, inserts chunks and persists
// doc's status, all in one transaction.
func (s *SQLiteStorage) ReplaceChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to delete index entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (`+chunkColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, c := range chunks {
		if c.DocumentID != doc.ID {
			return fmt.Errorf("chunk %s belongs to %s, not %s", c.ID, c.DocumentID, doc.ID)
		}
		c.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.ChunkIndex, c.Content, c.CharCount, c.TokenCount,
			nullString(c.SectionTitle), nullString(c.Embedding), nullString(c.EmbeddingModel),
			nullString(c.PrevChunkID), nullString(c.NextChunkID), c.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	if err := updateStatus(ctx, tx, doc); err != nil {
		return err
	}
	return tx.Commit()
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chunk %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
}

// PendingChunks returns the document's chunks that have no embedding, in chunk order.
func (s *SQLiteStorage) PendingChunks(ctx context.Context, docID string) ([]*models.Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks
		 WHERE document_id = ? AND embedding IS NULL ORDER BY chunk_index`, docID)
}

func (s *SQLiteStorage) queryChunks(ctx context.Context, query string, args ...any) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SaveEmbeddings writes the embedding fields of chunks in one transaction. Every chunk
// must still exist; otherwise nothing is written.
func (s *SQLiteStorage) SaveEmbeddings(ctx context.Context, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE chunks SET embedding = ?, embedding_model = ? WHERE id = ?`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		result, err := stmt.ExecContext(ctx, nullString(c.Embedding), nullString(c.EmbeddingModel), c.ID)
		if err != nil {
			return fmt.Errorf("failed to save embedding for chunk %s: %w", c.ID, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: chunk %s", models.ErrNotFound, c.ID)
		}
	}
	return tx.Commit()
}

// InvalidateEmbeddings clears the embeddings and index entries of chunkIDs and marks their
// documents failed with reason, so the next pipeline run re-embeds them.
func (s *SQLiteStorage) InvalidateEmbeddings(ctx context.Context, chunkIDs []string, reason string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	now := time.Now()
	docArgs := append([]any{string(models.StatusFailed), reason, now}, args...)
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET status = ?, error_message = ?, updated_at = ?, processed_at = NULL
		 WHERE id IN (SELECT DISTINCT document_id FROM chunks WHERE id IN (`+placeholders+`))`,
		docArgs...,
	); err != nil {
		return fmt.Errorf("failed to mark documents failed: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunk_vectors WHERE chunk_id IN (`+placeholders+`)`, args...,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE chunks SET embedding = NULL, embedding_model = NULL WHERE id IN (`+placeholders+`)`, args...,
	); err != nil {
		return err
	}
	return tx.Commit()
}

const metricsColumns = `id, timestamp, question, guardrails_latency, retrieval_latency, llm_latency, total_latency,
	query_tokens, context_tokens, prompt_tokens, completion_tokens, total_tokens,
	retrieval_cost, llm_cost, total_cost, chunks_retrieved, avg_similarity,
	success, error, guardrails_passed, guardrails_violations`

// AppendQueryMetrics adds an entry to the query log and sets m.ID.
func (s *SQLiteStorage) AppendQueryMetrics(ctx context.Context, m *models.QueryMetrics) error {
	violations, err := json.Marshal(m.GuardrailsViolations)
	if err != nil {
		return fmt.Errorf("failed to marshal violations: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO query_metrics (timestamp, question, guardrails_latency, retrieval_latency, llm_latency,
			total_latency, query_tokens, context_tokens, prompt_tokens, completion_tokens, total_tokens,
			retrieval_cost, llm_cost, total_cost, chunks_retrieved, avg_similarity,
			success, error, guardrails_passed, guardrails_violations)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Timestamp, m.Question, m.GuardrailsLatency, m.RetrievalLatency, m.LLMLatency, m.TotalLatency,
		m.QueryTokens, m.ContextTokens, m.PromptTokens, m.CompletionTokens, m.TotalTokens,
		m.RetrievalCost, m.LLMCost, m.TotalCost, m.ChunksRetrieved, m.AvgSimilarity,
		m.Success, nullString(m.Error), m.GuardrailsPassed, string(violations),
	)
	if err != nil {
		return fmt.Errorf("failed to append query metrics: %w", err)
	}
	m.ID, _ = result.LastInsertId()
	return nil
}

// ListQueryMetrics returns the last lastN entries (all when lastN <= 0) in chronological order.
func (s *SQLiteStorage) ListQueryMetrics(ctx context.Context, lastN int) ([]*models.QueryMetrics, error) {
	query := `SELECT ` + metricsColumns + ` FROM query_metrics ORDER BY id`
	var args []any
	if lastN > 0 {
		query = `SELECT * FROM (SELECT ` + metricsColumns + ` FROM query_metrics ORDER BY id DESC LIMIT ?) ORDER BY id`
		args = append(args, lastN)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.QueryMetrics
	for rows.Next() {
		var m models.QueryMetrics
		var errMsg, violations sql.NullString
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.Question, &m.GuardrailsLatency, &m.RetrievalLatency,
			&m.LLMLatency, &m.TotalLatency, &m.QueryTokens, &m.ContextTokens, &m.PromptTokens,
			&m.CompletionTokens, &m.TotalTokens, &m.RetrievalCost, &m.LLMCost, &m.TotalCost,
			&m.ChunksRetrieved, &m.AvgSimilarity, &m.Success, &errMsg, &m.GuardrailsPassed, &violations); err != nil {
			return nil, err
		}
		m.Error = errMsg.String
		if violations.String != "" {
			if err := json.Unmarshal([]byte(violations.String), &m.GuardrailsViolations); err != nil {
				return nil, fmt.Errorf("failed to unmarshal violations: %w", err)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountDocumentsByStatus returns document counts keyed by status.
func (s *SQLiteStorage) CountDocumentsByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// CountDocumentChunks returns the number of chunks of one document.
func (s *SQLiteStorage) CountDocumentChunks(ctx context.Context, docID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = ?`, docID).Scan(&count)
	return count, err
}

// CountEmbeddedChunks returns the number of chunks that carry an embedding.
func (s *SQLiteStorage) CountEmbeddedChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
