package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/highlight/highlighter/ansi"
	"github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kotae/internal/models"
)

// Fragment styles for SearchOptions.Highlight.
const (
	HighlightHTML = html.Name
	HighlightANSI = ansi.Name
)

const (
	fieldDocumentID = "document_id"
	fieldTitle      = "title"
	fieldContent    = "content"

	defaultFuzziness = 2
	deletePageSize   = 500
)

// chunkDoc is the indexed form of a chunk.
type chunkDoc struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index     bleve.Index
	closeOnce sync.Once
	closeErr  error
}

// NewBleveIndex creates or opens a Bleve index at path.
// Delete the directory after changing the mapping to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	chunkMapping := bleve.NewDocumentMapping()

	// Standard analyzer lowercases and tokenizes without stemming, so "bayes" matches "Bayes".
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	chunkMapping.AddFieldMappingsAt(fieldContent, text)
	chunkMapping.AddFieldMappingsAt(fieldTitle, text)
	chunkMapping.AddFieldMappingsAt(fieldDocumentID, bleve.NewKeywordFieldMapping())

	position := bleve.NewNumericFieldMapping()
	position.Index = false
	chunkMapping.AddFieldMappingsAt("chunk_index", position)

	im.AddDocumentMapping("chunk", chunkMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = chunkMapping
	return im
}

// IndexChunks implements Index.
func (b *BleveIndex) IndexChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	if err := b.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for _, c := range chunks {
		title := doc.Filename
		if c.SectionTitle != "" {
			title += " " + c.SectionTitle
		}
		err := batch.Index(c.ID, chunkDoc{
			DocumentID: doc.ID,
			Title:      title,
			Content:    c.Content,
			ChunkIndex: c.ChunkIndex,
		})
		if err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index chunks of %s: %w", doc.ID, err)
	}
	return nil
}

// DeleteDocument implements Index.
func (b *BleveIndex) DeleteDocument(ctx context.Context, docID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := bleve.NewTermQuery(docID)
		q.SetField(fieldDocumentID)
		req := bleve.NewSearchRequest(q)
		req.Size = deletePageSize
		res, err := b.index.Search(req)
		if err != nil {
			return fmt.Errorf("failed to find chunks of %s: %w", docID, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete chunks of %s: %w", docID, err)
		}
	}
}

// Search runs a match (or fuzzy) query over title and content and returns up to limit hits.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Hit, error) {
	if strings.TrimSpace(query) == "" {
		return []*Hit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	titleBoost := 1.0
	fuzzy := false
	fuzziness := defaultFuzziness
	style := ""
	if opts != nil {
		style = opts.Highlight
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		fuzzy = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var q blevequery.Query
	if titleBoost <= 1 {
		q = buildQuery(query, "", fuzzy, fuzziness, 1)
	} else {
		q = bleve.NewDisjunctionQuery(
			buildQuery(query, fieldTitle, fuzzy, fuzziness, titleBoost),
			buildQuery(query, fieldContent, fuzzy, fuzziness, 1),
		)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{fieldDocumentID}
	if style != "" {
		req.Highlight = bleve.NewHighlightWithStyle(style)
		req.Highlight.AddField(fieldContent)
	}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]*Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		docID, _ := h.Fields[fieldDocumentID].(string)
		out = append(out, &Hit{ChunkID: h.ID, DocumentID: docID, Score: h.Score, Fragments: h.Fragments[fieldContent]})
	}
	return out, nil
}

// buildQuery matches query against field (all fields when empty). Fuzzy queries OR one
// FuzzyQuery per term, mirroring MatchQuery's any-term semantics.
func buildQuery(query, field string, fuzzy bool, fuzziness int, boost float64) blevequery.Query {
	terms := strings.Fields(strings.ToLower(query))
	if !fuzzy || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		if field != "" {
			mq.SetField(field)
		}
		mq.SetBoost(boost)
		return mq
	}

	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		fq.SetBoost(boost)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index. Later calls return the first call's result; operations
// after Close fail with bleve.ErrorIndexClosed.
func (b *BleveIndex) Close() error {
	b.closeOnce.Do(func() { b.closeErr = b.index.Close() })
	return b.closeErr
}
