package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/models"
)

func newTestIndex(t *testing.T) (*BleveIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bleve")
	idx, err := NewBleveIndex(path)
	require.NoError(t, err)
	return idx, path
}

func chunk(id, docID, content string, index int) *models.Chunk {
	return &models.Chunk{ID: id, DocumentID: docID, Content: content, ChunkIndex: index}
}

func TestBleveIndex_IndexAndSearch(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	ctx := context.Background()

	doc := &models.Document{ID: "d1", Filename: "Bayes notes.md"}
	require.NoError(t, idx.IndexChunks(ctx, doc, []*models.Chunk{
		chunk("c1", "d1", "Embeddings map text into vectors.", 0),
		chunk("c2", "d1", "The Bayesian prior is updated.", 1),
	}))

	hits, err := idx.Search(ctx, "vectors", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.Equal(t, "d1", hits[0].DocumentID)
	assert.Positive(t, hits[0].Score)

	// Title field carries the file name.
	hits, err = idx.Search(ctx, "bayes", 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestBleveIndex_ReindexReplacesChunks(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	ctx := context.Background()
	doc := &models.Document{ID: "d1", Filename: "a.txt"}

	require.NoError(t, idx.IndexChunks(ctx, doc, []*models.Chunk{
		chunk("old-1", "d1", "stale transformer text", 0),
		chunk("old-2", "d1", "more stale text", 1),
	}))
	require.NoError(t, idx.IndexChunks(ctx, doc, []*models.Chunk{
		chunk("new-1", "d1", "fresh attention text", 0),
	}))

	hits, err := idx.Search(ctx, "stale", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestBleveIndex_DeleteDocument(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	ctx := context.Background()

	require.NoError(t, idx.IndexChunks(ctx, &models.Document{ID: "d1", Filename: "a.txt"},
		[]*models.Chunk{chunk("a1", "d1", "shared retrieval words", 0)}))
	require.NoError(t, idx.IndexChunks(ctx, &models.Document{ID: "d2", Filename: "b.txt"},
		[]*models.Chunk{chunk("b1", "d2", "shared retrieval words", 0)}))

	require.NoError(t, idx.DeleteDocument(ctx, "d1"))
	require.NoError(t, idx.DeleteDocument(ctx, "missing"))

	hits, err := idx.Search(ctx, "retrieval", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d2", hits[0].DocumentID)
}

func TestBleveIndex_FuzzyAndTitleBoost(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	ctx := context.Background()

	require.NoError(t, idx.IndexChunks(ctx, &models.Document{ID: "d1", Filename: "chunking guide.md"},
		[]*models.Chunk{chunk("t1", "d1", "overlap keeps context between windows", 0)}))
	require.NoError(t, idx.IndexChunks(ctx, &models.Document{ID: "d2", Filename: "notes.md"},
		[]*models.Chunk{chunk("c1", "d2", "chunking splits documents", 0)}))

	hits, err := idx.Search(ctx, "overlpa", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(ctx, "overlpa", 10, &SearchOptions{FuzzyEnabled: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "t1", hits[0].ChunkID)

	hits, err = idx.Search(ctx, "chunking", 10, &SearchOptions{TitleBoost: 5})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "t1", hits[0].ChunkID)
}

func TestBleveIndex_Highlight(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	ctx := context.Background()
	require.NoError(t, idx.IndexChunks(ctx, &models.Document{ID: "d1", Filename: "a.txt"},
		[]*models.Chunk{chunk("c1", "d1", "cosine similarity compares embedding vectors", 0)}))

	hits, err := idx.Search(ctx, "similarity", 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Empty(t, hits[0].Fragments)

	hits, err = idx.Search(ctx, "similarity", 5, &SearchOptions{Highlight: HighlightHTML})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.NotEmpty(t, hits[0].Fragments)
	assert.Contains(t, hits[0].Fragments[0], "<mark>similarity</mark>")
}

func TestBleveIndex_Reopen(t *testing.T) {
	idx, path := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.IndexChunks(ctx, &models.Document{ID: "d1", Filename: "a.txt"},
		[]*models.Chunk{chunk("c1", "d1", "persistent lstm notes", 0)}))
	require.NoError(t, idx.Close())

	idx, err := NewBleveIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	hits, err := idx.Search(ctx, "lstm", 5, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestBleveIndex_CloseTwice(t *testing.T) {
	idx, _ := newTestIndex(t)
	require.NoError(t, idx.Close())
	assert.NoError(t, idx.Close())

	err := idx.IndexChunks(context.Background(), &models.Document{ID: "d1", Filename: "a.txt"},
		[]*models.Chunk{chunk("c1", "d1", "closed index", 0)})
	assert.Error(t, err)
}

func TestBleveIndex_EmptyQuery(t *testing.T) {
	idx, _ := newTestIndex(t)
	defer idx.Close()
	hits, err := idx.Search(context.Background(), "   ", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
