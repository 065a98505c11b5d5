package vector

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// distanceEpsilon absorbs float rounding when comparing against the distance bound.
const distanceEpsilon = 1e-9

// SQLiteIndex implements Index on the chunk_vectors table of a store opened with DriverName.
// It reads the chunks table to find sync candidates; the schema is owned by the storage package.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex returns an index backed by db.
func NewSQLiteIndex(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

// Pending returns embedded chunks without an index entry, in document/chunk order.
func (s *SQLiteIndex) Pending(ctx context.Context, limit int) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.embedding
		 FROM chunks c
		 LEFT JOIN chunk_vectors v ON v.chunk_id = c.id
		 WHERE c.embedding IS NOT NULL AND v.chunk_id IS NULL
		 ORDER BY c.document_id, c.chunk_index
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select sync candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.Raw); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PendingCount returns the number of embedded chunks without an index entry.
func (s *SQLiteIndex) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks c
		 LEFT JOIN chunk_vectors v ON v.chunk_id = c.id
		 WHERE c.embedding IS NOT NULL AND v.chunk_id IS NULL`,
	).Scan(&n)
	return n, err
}

// Add writes entries in one transaction.
func (s *SQLiteIndex) Add(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO chunk_vectors (chunk_id, document_id, embedding, dimensions, synced_at)
		 SELECT ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM chunks WHERE id = ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now()
	written := 0
	for _, e := range entries {
		res, err := stmt.ExecContext(ctx, e.ChunkID, e.DocumentID, ToLiteral(e.Vector), len(e.Vector), now, e.ChunkID)
		if err != nil {
			return 0, fmt.Errorf("failed to index chunk %s: %w", e.ChunkID, err)
		}
		n, _ := res.RowsAffected()
		written += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

// Search runs a brute-force cosine scan through vec_cosine_distance.
func (s *SQLiteIndex) Search(ctx context.Context, query []float32, k int, maxDistance float64) ([]Hit, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, document_id, distance FROM (
			SELECT chunk_id, document_id, vec_cosine_distance(embedding, ?) AS distance
			FROM chunk_vectors
		 )
		 WHERE distance IS NOT NULL AND distance <= ?
		 ORDER BY distance ASC, chunk_id ASC
		 LIMIT ?`,
		ToLiteral(query), maxDistance+distanceEpsilon, k,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Size returns the number of indexed entries.
func (s *SQLiteIndex) Size(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_vectors`).Scan(&n)
	return n, err
}
