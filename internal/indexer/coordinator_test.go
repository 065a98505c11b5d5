package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// flakyProvider fails every call while failing is set.
type flakyProvider struct {
	*embedding.HashProvider
	failing atomic.Bool
}

func (p *flakyProvider) CreateEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if p.failing.Load() {
		return nil, errors.New("provider down")
	}
	return p.HashProvider.CreateEmbeddings(ctx, model, texts)
}

type fixture struct {
	coord    *Coordinator
	store    *storage.SQLiteStorage
	index    *vector.SQLiteIndex
	keywords *keyword.BleveIndex
	provider *flakyProvider
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "kotae.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	keywords, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = keywords.Close() })

	cfg := config.Config{
		Ingest: config.IngestConfig{
			MaxFileSize:       1024,
			AllowedExtensions: []string{".txt", ".md"},
			Workers:           2,
		},
		Embedding: config.EmbeddingConfig{Model: "hash", Dimensions: 8, BatchSize: 2, MaxAttempts: 1},
		Index:     config.IndexConfig{SyncBatchSize: 3},
	}
	segmenter, err := NewSegmenter(config.ChunkingConfig{ChunkSize: 40, ChunkOverlap: 5, MaxChunksPerDocument: 50})
	require.NoError(t, err)

	provider := &flakyProvider{HashProvider: embedding.NewHashProvider(8)}
	orchestrator := embedding.NewOrchestrator(store, provider, cfg.Embedding)
	index := vector.NewSQLiteIndex(store.DB())
	syncer := vector.NewSyncer(index, vector.WithQuarantine(store), vector.WithDimensions(8))

	return &fixture{
		coord:    NewCoordinator(store, segmenter, orchestrator, syncer, keywords, nil, cfg),
		store:    store,
		index:    index,
		keywords: keywords,
		provider: provider,
		dir:      dir,
	}
}

const sampleText = "Retrieval augmented generation grounds answers in documents.\n\n" +
	"The embeddings are stored in a vector index and searched by similarity.\n\n" +
	"Chunks overlap so that context is not lost at the edges."

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{"md", []string{".txt", ".md"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
		{".pdf", nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extensionAllowed(tt.ext, tt.allowed), "extensionAllowed(%q, %v)", tt.ext, tt.allowed)
	}
}

func TestCoordinator_Ingest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw := strings.ReplaceAll(sampleText, "\n", "\r\n")
	doc, err := f.coord.Ingest(ctx, "/uploads/notes.md", []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, fileid.DocumentID("notes.md"), doc.ID)
	assert.Equal(t, "notes.md", doc.Filename)
	assert.Equal(t, "md", doc.FileType)
	assert.Equal(t, models.StatusUploaded, doc.Status)
	assert.Equal(t, "en", doc.Language)
	assert.Equal(t, CountWords(sampleText), doc.NumWords)
	assert.Equal(t, sampleText, doc.Content)
	assert.Equal(t, int64(len(raw)), doc.FileSize)

	stored, err := f.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.NumChars, stored.NumChars)
}

func TestCoordinator_Ingest_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.Ingest(ctx, "report.pdf", []byte("%PDF"))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.coord.Ingest(ctx, "big.txt", []byte(strings.Repeat("a", 2048)))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.coord.Ingest(ctx, "blank.txt", []byte(" \n\t "))
	assert.ErrorIs(t, err, models.ErrValidation)

	n, err := f.store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCoordinator_Ingest_Unchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coord.Ingest(ctx, "notes.txt", []byte(sampleText))
	require.NoError(t, err)
	_, err = f.coord.ProcessDocument(ctx, first.ID)
	require.NoError(t, err)

	again, err := f.coord.Ingest(ctx, "notes.txt", []byte(sampleText))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, again.Status)

	replaced, err := f.coord.Ingest(ctx, "notes.txt", []byte("A different body of text about transformers."))
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, replaced.Status)
	n, err := f.store.CountDocumentChunks(ctx, replaced.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCoordinator_ProcessDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.coord.Ingest(ctx, "notes.md", []byte(sampleText))
	require.NoError(t, err)

	res, err := f.coord.ProcessDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Greater(t, res.Chunks, 1)
	assert.Equal(t, res.Chunks, res.Embed.Processed)
	assert.Equal(t, res.Chunks, res.Synced)

	size, err := f.index.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, size)

	hits, err := f.keywords.Search(ctx, "similarity", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, doc.ID, hits[0].DocumentID)

	again, err := f.coord.ProcessDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, res.Chunks, again.Chunks)
	assert.Nil(t, again.Embed)
}

func TestCoordinator_ProcessDocument_ResumesAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.coord.Ingest(ctx, "notes.md", []byte(sampleText))
	require.NoError(t, err)

	f.provider.failing.Store(true)
	res, err := f.coord.ProcessDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.NotEmpty(t, res.Embed.FailedBatches)
	assert.Zero(t, res.Synced)

	before, err := f.store.GetChunksByDocumentID(ctx, doc.ID)
	require.NoError(t, err)

	f.provider.failing.Store(false)
	res, err = f.coord.ProcessDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, len(before), res.Embed.Processed)

	// Resuming embeds the existing chunks instead of segmenting again.
	after, err := f.store.GetChunksByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
	}
}

func TestCoordinator_ProcessDocument_TooManyChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.coord.Ingest(ctx, "long.txt", []byte(strings.Repeat("word ", 200)))
	require.NoError(t, err)
	seg, err := NewSegmenter(config.ChunkingConfig{ChunkSize: 40, ChunkOverlap: 5, MaxChunksPerDocument: 2})
	require.NoError(t, err)
	f.coord.segmenter = seg

	_, err = f.coord.ProcessDocument(ctx, doc.ID)
	require.ErrorIs(t, err, models.ErrValidation)

	stored, err := f.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
}

func TestCoordinator_Rechunk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.coord.Ingest(ctx, "notes.md", []byte(sampleText))
	require.NoError(t, err)
	first, err := f.coord.ProcessDocument(ctx, doc.ID)
	require.NoError(t, err)
	before, err := f.store.GetChunksByDocumentID(ctx, doc.ID)
	require.NoError(t, err)

	res, err := f.coord.Rechunk(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, first.Chunks, res.Chunks)

	after, err := f.store.GetChunksByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	assert.NotEqual(t, before[0].ID, after[0].ID)

	size, err := f.index.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(after), size)
}

func TestCoordinator_ProcessFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	good := filepath.Join(f.dir, "good.md")
	other := filepath.Join(f.dir, "other.txt")
	missing := filepath.Join(f.dir, "missing.txt")
	require.NoError(t, os.WriteFile(good, []byte(sampleText), 0o600))
	require.NoError(t, os.WriteFile(other, []byte("Tokens and vectors."), 0o600))

	results, err := f.coord.ProcessFiles(ctx, []string{good, missing, other})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, good, results[0].Source)
	assert.Equal(t, models.StatusCompleted, results[0].Status)
	assert.Error(t, results[1].Err)
	assert.Equal(t, models.StatusFailed, results[1].Status)
	assert.NotEmpty(t, results[1].Error)
	assert.Equal(t, models.StatusCompleted, results[2].Status)
}

func TestCoordinator_ProcessDirectory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docs := filepath.Join(f.dir, "docs")
	require.NoError(t, os.MkdirAll(filepath.Join(docs, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "a.md"), []byte(sampleText), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "nested", "b.txt"), []byte("Attention is all you need."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "skip.go"), []byte("package main"), 0o600))

	results, err := f.coord.ProcessDirectory(ctx, docs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, models.StatusCompleted, r.Status)
	}

	_, err = f.coord.ProcessDirectory(ctx, filepath.Join(docs, "a.md"))
	assert.Error(t, err)
}

func TestCoordinator_ProcessDirectory_SameNameInSiblingDirs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docs := filepath.Join(f.dir, "docs")
	require.NoError(t, os.MkdirAll(filepath.Join(docs, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(docs, "b"), 0o755))
	a := filepath.Join(docs, "a", "notes.md")
	b := filepath.Join(docs, "b", "notes.md")
	require.NoError(t, os.WriteFile(a, []byte(sampleText), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("Attention is all you need."), 0o600))

	results, err := f.coord.ProcessDirectory(ctx, docs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotEqual(t, results[0].DocumentID, results[1].DocumentID)

	n, err := f.store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// A second run finds both documents done and embeds nothing.
	f.provider.failing.Store(true)
	again, err := f.coord.ProcessDirectory(ctx, docs)
	require.NoError(t, err)
	for _, r := range again {
		assert.NoError(t, r.Err)
		assert.True(t, r.Skipped, r.Source)
	}

	// Removing one file leaves its namesake alone.
	require.NoError(t, f.coord.RemoveFile(ctx, a))
	_, err = f.store.GetDocument(ctx, fileid.PathID(a))
	assert.ErrorIs(t, err, models.ErrNotFound)
	survivor, err := f.store.GetDocument(ctx, fileid.PathID(b))
	require.NoError(t, err)
	assert.Equal(t, "notes.md", survivor.Filename)
}

func TestCoordinator_ProcessFiles_DuplicatePath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := filepath.Join(f.dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte(sampleText), 0o600))

	results, err := f.coord.ProcessFiles(ctx, []string{path, path})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Same(t, results[0], results[1])
	assert.Equal(t, models.StatusCompleted, results[0].Status)
}

func TestCoordinator_ProcessDocument_KeywordIndexDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// resumed already has chunks, so it takes the keyword re-index path.
	resumed, err := f.coord.Ingest(ctx, "resumed.md", []byte(sampleText))
	require.NoError(t, err)
	f.provider.failing.Store(true)
	res, err := f.coord.ProcessDocument(ctx, resumed.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, res.Status)
	f.provider.failing.Store(false)

	fresh, err := f.coord.Ingest(ctx, "fresh.txt", []byte("Attention is all you need."))
	require.NoError(t, err)
	require.NoError(t, f.keywords.Close())

	for _, id := range []string{fresh.ID, resumed.ID} {
		res, err := f.coord.ProcessDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, res.Status)
		assert.Positive(t, res.Chunks)
		assert.Equal(t, res.Chunks, res.Embed.Processed)
		assert.Equal(t, res.Chunks, res.Synced)
	}
}

func TestCoordinator_DeleteDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := filepath.Join(f.dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte(sampleText), 0o600))
	res, err := f.coord.ProcessFile(ctx, path)
	require.NoError(t, err)

	require.NoError(t, f.coord.RemoveFile(ctx, path))

	_, err = f.store.GetDocument(ctx, res.DocumentID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	size, err := f.index.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
	count, err := f.keywords.DocCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	// Removing an unknown file is a no-op; deleting an unknown id is not.
	assert.NoError(t, f.coord.RemoveFile(ctx, path))
	assert.ErrorIs(t, f.coord.DeleteDocument(ctx, res.DocumentID), models.ErrNotFound)
}

func TestMetadata(t *testing.T) {
	assert.Equal(t, 3, CountWords(" one\ttwo\nthree "))
	assert.Equal(t, "en", DetectLanguage("The cat and the dog have it"))
	assert.Equal(t, "pt", DetectLanguage("O gato e o cão da casa para que"))
	assert.Equal(t, "", DetectLanguage("vectors embeddings"))
	assert.Equal(t, "", DetectLanguage(""))

	long := strings.Repeat("é", 600)
	assert.Equal(t, strings.Repeat("é", 500), Preview(long))
	assert.Equal(t, "short", Preview("short"))
}
