package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedDocument(t *testing.T, store *SQLiteStorage, id string, n int) (*models.Document, []*models.Chunk) {
	t.Helper()
	ctx := context.Background()
	doc := &models.Document{ID: id, Filename: id + ".txt", FileType: "txt", Content: "body"}
	require.NoError(t, store.CreateDocument(ctx, doc))

	chunks := make([]*models.Chunk, n)
	for i := range chunks {
		chunks[i] = &models.Chunk{
			ID:         fmt.Sprintf("%s-c%d", id, i),
			DocumentID: id,
			ChunkIndex: i,
			Content:    fmt.Sprintf("chunk %d", i),
			CharCount:  7,
			TokenCount: 1,
		}
	}
	require.NoError(t, doc.MarkChunked())
	require.NoError(t, store.ReplaceChunks(ctx, doc, chunks))
	return doc, chunks
}

func TestSQLiteStorage_DocumentCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := &models.Document{
		ID:             "doc1",
		Filename:       "notes.md",
		FileType:       "md",
		FileSize:       42,
		Content:        "# Notes\nhello",
		ContentPreview: "# Notes",
		Language:       "en",
		NumWords:       3,
		NumChars:       13,
	}
	require.NoError(t, store.CreateDocument(ctx, doc))
	assert.False(t, doc.CreatedAt.IsZero())
	assert.Equal(t, models.StatusUploaded, doc.Status)

	got, err := store.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "notes.md", got.Filename)
	assert.Equal(t, "# Notes\nhello", got.Content)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, models.StatusUploaded, got.Status)
	assert.Nil(t, got.ProcessedAt)

	require.NoError(t, got.MarkFailed("boom"))
	require.NoError(t, store.UpdateDocumentStatus(ctx, got))
	got, err = store.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)

	list, err := store.ListDocuments(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteDocument(ctx, "doc1"))
	_, err = store.GetDocument(ctx, "doc1")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, store.DeleteDocument(ctx, "doc1"), models.ErrNotFound)
}

func TestSQLiteStorage_UpdateMissingDocument(t *testing.T) {
	store := newTestStore(t)
	doc := &models.Document{ID: "ghost", Status: models.StatusFailed}
	assert.ErrorIs(t, store.UpdateDocumentStatus(context.Background(), doc), models.ErrNotFound)
}

func TestSQLiteStorage_ReplaceChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc, _ := seedDocument(t, store, "d1", 3)

	got, err := store.GetChunksByDocumentID(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i, c.ChunkIndex)
		assert.False(t, c.HasEmbedding())
	}

	stored, err := store.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusChunked, stored.Status)

	// Replacing drops the previous generation entirely.
	fresh := []*models.Chunk{{ID: "d1-new", DocumentID: "d1", ChunkIndex: 0, Content: "new"}}
	require.NoError(t, doc.MarkChunked())
	require.NoError(t, store.ReplaceChunks(ctx, doc, fresh))

	got, err = store.GetChunksByDocumentID(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d1-new", got[0].ID)

	_, err = store.GetChunk(ctx, "d1-c0")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSQLiteStorage_ReplaceChunksRejectsForeignChunk(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc, _ := seedDocument(t, store, "d1", 2)

	bad := []*models.Chunk{{ID: "x", DocumentID: "other", ChunkIndex: 0, Content: "x"}}
	require.Error(t, store.ReplaceChunks(ctx, doc, bad))

	// The failed replacement leaves the old chunks in place.
	n, err := store.CountDocumentChunks(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteStorage_SaveEmbeddings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, chunks := seedDocument(t, store, "d1", 3)

	chunks[0].AttachEmbedding("[1,0]", "m")
	chunks[1].AttachEmbedding("[0,1]", "m")
	require.NoError(t, store.SaveEmbeddings(ctx, chunks[:2]))

	pending, err := store.PendingChunks(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "d1-c2", pending[0].ID)

	c, err := store.GetChunk(ctx, "d1-c0")
	require.NoError(t, err)
	assert.Equal(t, "[1,0]", c.Embedding)
	assert.Equal(t, "m", c.EmbeddingModel)

	embedded, err := store.CountEmbeddedChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), embedded)
}

func TestSQLiteStorage_SaveEmbeddingsIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, chunks := seedDocument(t, store, "d1", 2)

	chunks[0].AttachEmbedding("[1,0]", "m")
	missing := &models.Chunk{ID: "gone", DocumentID: "d1", Embedding: "[0,1]"}
	err := store.SaveEmbeddings(ctx, []*models.Chunk{chunks[0], missing})
	assert.ErrorIs(t, err, models.ErrNotFound)

	pending, err := store.PendingChunks(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestSQLiteStorage_InvalidateEmbeddings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc, chunks := seedDocument(t, store, "d1", 2)

	for _, c := range chunks {
		c.AttachEmbedding("[1,0]", "m")
	}
	require.NoError(t, store.SaveEmbeddings(ctx, chunks))
	require.NoError(t, doc.MarkEmbedding())
	require.NoError(t, doc.MarkCompleted())
	require.NoError(t, store.UpdateDocumentStatus(ctx, doc))

	require.NoError(t, store.InvalidateEmbeddings(ctx, []string{"d1-c1"}, "bad vector"))

	got, err := store.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "bad vector", got.ErrorMessage)
	assert.Nil(t, got.ProcessedAt)

	pending, err := store.PendingChunks(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "d1-c1", pending[0].ID)

	assert.NoError(t, store.InvalidateEmbeddings(ctx, nil, "noop"))
}

func TestSQLiteStorage_QueryMetrics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m := &models.QueryMetrics{
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			Question:     fmt.Sprintf("q%d", i),
			TotalLatency: float64(i),
			Success:      i%2 == 0,
		}
		if i == 4 {
			m.GuardrailsViolations = []string{"url", "injection"}
		} else {
			m.GuardrailsPassed = true
		}
		require.NoError(t, store.AppendQueryMetrics(ctx, m))
		assert.Equal(t, int64(i+1), m.ID)
	}

	all, err := store.ListQueryMetrics(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "q0", all[0].Question)

	last, err := store.ListQueryMetrics(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "q3", last[0].Question)
	assert.Equal(t, "q4", last[1].Question)
	assert.False(t, last[1].GuardrailsPassed)
	assert.Equal(t, []string{"url", "injection"}, last[1].GuardrailsViolations)
	assert.True(t, last[1].Success)
}

func TestSQLiteStorage_Counts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, store, "a", 2)
	seedDocument(t, store, "b", 3)
	require.NoError(t, store.CreateDocument(ctx, &models.Document{ID: "c", Filename: "c.txt", FileType: "txt"}))

	docs, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), docs)

	chunks, err := store.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), chunks)

	byStatus, err := store.CountDocumentsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), byStatus[models.StatusChunked])
	assert.Equal(t, int64(1), byStatus[models.StatusUploaded])
}
