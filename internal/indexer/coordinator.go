// Package indexer segments documents and runs them through the ingestion pipeline:
// extraction, chunking, embedding and vector index sync.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Embedder fills vectors for a document's pending chunks.
type Embedder interface {
	EmbedPending(ctx context.Context, docID string, batchSize int) (*models.EmbedResult, error)
}

// IndexSyncer copies stored vectors into the vector index.
type IndexSyncer interface {
	Drain(ctx context.Context, batchSize int) (*models.SyncResult, error)
}

// Coordinator sequences segmentation, embedding and index sync per document.
type Coordinator struct {
	store        storage.Storage
	segmenter    *Segmenter
	embedder     Embedder
	syncer       IndexSyncer
	keywordIndex keyword.Index
	extractor    *extract.Extractor
	ingest       config.IngestConfig
	syncBatch    int
	logger       *zap.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets a logger for per-stage progress and per-document failures.
func WithLogger(l *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator creates a coordinator. keywordIndex may be nil, in which case chunks are
// only searchable by similarity.
func NewCoordinator(
	store storage.Storage,
	segmenter *Segmenter,
	embedder Embedder,
	syncer IndexSyncer,
	keywordIndex keyword.Index,
	extractor *extract.Extractor,
	cfg config.Config,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		store:        store,
		segmenter:    segmenter,
		embedder:     embedder,
		syncer:       syncer,
		keywordIndex: keywordIndex,
		extractor:    extractor,
		ingest:       cfg.Ingest,
		syncBatch:    cfg.Index.SyncBatchSize,
	}
	if c.extractor == nil {
		c.extractor = extract.NewExtractor()
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c
}

// Ingest validates, extracts and stores an uploaded document named name. Uploads are
// identified by base name: re-uploading a name with identical text returns the stored
// document unchanged; different text replaces it.
func (c *Coordinator) Ingest(ctx context.Context, name string, content []byte) (*models.Document, error) {
	return c.ingestAs(ctx, fileid.DocumentID(name), name, content)
}

// ingestAs stores content under id, replacing a stored document whose text differs.
func (c *Coordinator) ingestAs(ctx context.Context, id, name string, content []byte) (*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !extensionAllowed(ext, c.ingest.AllowedExtensions) {
		return nil, fmt.Errorf("%w: file type %q not allowed (allowed: %s)",
			models.ErrValidation, ext, strings.Join(c.ingest.AllowedExtensions, ", "))
	}
	if c.ingest.MaxFileSize > 0 && int64(len(content)) > c.ingest.MaxFileSize {
		return nil, fmt.Errorf("%w: file size %d exceeds maximum of %d bytes",
			models.ErrValidation, len(content), c.ingest.MaxFileSize)
	}

	extraction, err := c.extractor.ExtractBytes(content, ext)
	if err != nil {
		return nil, err
	}
	text := Preprocess(extraction.Text)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text could be extracted from %s", models.ErrValidation, filepath.Base(name))
	}

	existing, err := c.store.GetDocument(ctx, id)
	switch {
	case err == nil && existing.Content == text:
		c.logger.Debug("document unchanged", zap.String("document_id", id), zap.String("name", name))
		return existing, nil
	case err == nil:
		if err := c.DeleteDocument(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to replace document: %w", err)
		}
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	doc := &models.Document{
		ID:             id,
		Filename:       filepath.Base(name),
		FileType:       strings.TrimPrefix(ext, "."),
		FileSize:       int64(len(content)),
		Content:        text,
		ContentPreview: Preview(text),
		Language:       DetectLanguage(text),
		NumPages:       extraction.NumPages,
		NumWords:       CountWords(text),
		NumChars:       utf8.RuneCountInString(text),
		Status:         models.StatusUploaded,
	}
	if err := c.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	c.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int("words", doc.NumWords),
		zap.String("language", doc.Language),
	)
	return doc, nil
}

// ProcessDocument brings docID to completed: it segments the document when it has no
// chunks, embeds whatever is still pending and drains the index sync. A completed
// document is skipped. Embedding batch failures are reported in the result, not as
// an error; the document is then left failed and a later call resumes it.
func (c *Coordinator) ProcessDocument(ctx context.Context, docID string) (*models.PipelineResult, error) {
	doc, err := c.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	result := &models.PipelineResult{DocumentID: doc.ID, Source: doc.Filename}

	n, err := c.store.CountDocumentChunks(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if doc.IsProcessed() {
		c.logger.Debug("document already processed", zap.String("document_id", doc.ID))
		result.Skipped = true
		result.Chunks = n
		result.Status = doc.Status
		return result, nil
	}

	if n == 0 {
		if n, err = c.segment(ctx, doc); err != nil {
			return nil, err
		}
	} else {
		c.reindexKeywords(ctx, doc)
	}
	result.Chunks = n
	return c.embedAndSync(ctx, doc.ID, result)
}

// Rechunk deletes and recreates every chunk of docID, then embeds and syncs the new ones.
func (c *Coordinator) Rechunk(ctx context.Context, docID string) (*models.PipelineResult, error) {
	doc, err := c.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	n, err := c.segment(ctx, doc)
	if err != nil {
		return nil, err
	}
	return c.embedAndSync(ctx, doc.ID, &models.PipelineResult{DocumentID: doc.ID, Source: doc.Filename, Chunks: n})
}

// segment replaces the document's chunks in one transaction. A document that cannot be
// segmented is marked failed.
func (c *Coordinator) segment(ctx context.Context, doc *models.Document) (int, error) {
	chunks, err := c.segmenter.Chunks(doc.ID, doc.Content)
	if err != nil {
		c.fail(ctx, doc, err)
		return 0, err
	}
	if err := doc.MarkChunked(); err != nil {
		return 0, err
	}
	if err := c.store.ReplaceChunks(ctx, doc, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	c.logger.Info("document chunked", zap.String("document_id", doc.ID), zap.Int("chunks", len(chunks)))

	c.indexKeywords(ctx, doc, chunks)
	return len(chunks), nil
}

// reindexKeywords repopulates the keyword index for a resumed document, which may have
// been opened empty.
func (c *Coordinator) reindexKeywords(ctx context.Context, doc *models.Document) {
	if c.keywordIndex == nil {
		return
	}
	chunks, err := c.store.GetChunksByDocumentID(ctx, doc.ID)
	if err != nil {
		c.logger.Warn("could not load chunks for keyword index", zap.String("document_id", doc.ID), zap.Error(err))
		return
	}
	c.indexKeywords(ctx, doc, chunks)
}

// indexKeywords adds chunks to the keyword index. Keyword search is secondary to
// similarity search, so a failure is logged and the document carries on to embedding.
func (c *Coordinator) indexKeywords(ctx context.Context, doc *models.Document, chunks []*models.Chunk) {
	if c.keywordIndex == nil {
		return
	}
	if err := c.keywordIndex.IndexChunks(ctx, doc, chunks); err != nil {
		c.logger.Warn("keyword indexing failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
}

func (c *Coordinator) embedAndSync(ctx context.Context, docID string, result *models.PipelineResult) (*models.PipelineResult, error) {
	embedded, err := c.embedder.EmbedPending(ctx, docID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to embed document: %w", err)
	}
	result.Embed = embedded

	synced, err := c.syncer.Drain(ctx, c.syncBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to sync vector index: %w", err)
	}
	result.Synced = synced.Synced

	doc, err := c.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	result.Status = doc.Status
	return result, nil
}

func (c *Coordinator) fail(ctx context.Context, doc *models.Document, cause error) {
	if err := doc.MarkFailed(cause.Error()); err != nil {
		c.logger.Warn("could not mark document failed", zap.String("document_id", doc.ID), zap.Error(err))
		return
	}
	if err := c.store.UpdateDocumentStatus(context.WithoutCancel(ctx), doc); err != nil {
		c.logger.Warn("could not persist failed status", zap.String("document_id", doc.ID), zap.Error(err))
	}
}

// ProcessFile ingests the file at path and processes the resulting document. Files are
// identified by absolute path, so same-named files in different directories are
// separate documents.
func (c *Coordinator) ProcessFile(ctx context.Context, path string) (*models.PipelineResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", models.ErrValidation, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	doc, err := c.ingestAs(ctx, fileid.PathID(path), path, content)
	if err != nil {
		return nil, err
	}
	result, err := c.ProcessDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	result.Source = path
	return result, nil
}

// ProcessFiles processes paths on up to the configured number of workers. A failing file
// does not stop the others; its error is carried in its result. Results are in path order.
// A path listed more than once is processed once and shares its result.
func (c *Coordinator) ProcessFiles(ctx context.Context, paths []string) ([]*models.PipelineResult, error) {
	results := make([]*models.PipelineResult, len(paths))
	first := make(map[string]int, len(paths))
	dup := make(map[int]int)
	var g errgroup.Group
	g.SetLimit(max(c.ingest.Workers, 1))
	for i, path := range paths {
		id := fileid.PathID(path)
		if j, seen := first[id]; seen {
			dup[i] = j
			continue
		}
		first[id] = i
		g.Go(func() error {
			res, err := c.ProcessFile(ctx, path)
			if err != nil {
				c.logger.Error("document processing failed", zap.String("path", path), zap.Error(err))
				res = &models.PipelineResult{
					DocumentID: id,
					Source:     path,
					Status:     models.StatusFailed,
					Err:        err,
					Error:      err.Error(),
				}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	for i, j := range dup {
		results[i] = results[j]
	}
	return results, ctx.Err()
}

// ProcessDirectory walks dir recursively and processes every regular file with an
// allowed extension.
func (c *Coordinator) ProcessDirectory(ctx context.Context, dir string) ([]*models.PipelineResult, error) {
	paths, err := c.collect(dir)
	if err != nil {
		return nil, err
	}
	c.logger.Info("processing directory", zap.String("dir", dir), zap.Int("files", len(paths)))
	return c.ProcessFiles(ctx, paths)
}

func (c *Coordinator) collect(dir string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	var paths []string
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !extensionAllowed(filepath.Ext(path), c.ingest.AllowedExtensions) {
			return nil
		}
		// Resolve symlinks so only regular files are processed
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}

// AllowedExtensions returns the configured extension allow-list.
func (c *Coordinator) AllowedExtensions() []string {
	return append([]string(nil), c.ingest.AllowedExtensions...)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes a document, its chunks and vectors, and its keyword entries.
func (c *Coordinator) DeleteDocument(ctx context.Context, id string) error {
	c.logger.Debug("deleting document", zap.String("document_id", id))
	if c.keywordIndex != nil {
		if err := c.keywordIndex.DeleteDocument(ctx, id); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	if err := c.store.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// RemoveFile deletes the document ingested from path, if any.
func (c *Coordinator) RemoveFile(ctx context.Context, path string) error {
	err := c.DeleteDocument(ctx, fileid.PathID(path))
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return err
}
