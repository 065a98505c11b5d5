// Package indexer segments documents into chunks and coordinates the ingestion pipeline.
package indexer

import (
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

const (
	paragraphRadius = 100
	lineRadius      = 50
	titleScanLines  = 3
)

// Window is one segment of a text. Start and End are rune offsets of the raw window;
// Text is the window trimmed of surrounding whitespace.
type Window struct {
	Index int
	Start int
	End   int
	Text  string
}

// Segmenter splits text into overlapping character windows whose right edge snaps to a
// nearby paragraph or line break.
type Segmenter struct {
	size      int
	overlap   int
	maxChunks int
}

// NewSegmenter validates cfg and returns a segmenter. Sizes are in characters (runes).
func NewSegmenter(cfg config.ChunkingConfig) (*Segmenter, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size must be positive, got %d", models.ErrValidation, cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: chunk_overlap must be in [0, %d), got %d",
			models.ErrValidation, cfg.ChunkSize, cfg.ChunkOverlap)
	}
	return &Segmenter{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap, maxChunks: cfg.MaxChunksPerDocument}, nil
}

// Windows yields the non-blank windows of text in order. The sequence is lazy and can be
// ranged over any number of times.
func (s *Segmenter) Windows(text string) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		runes := []rune(text)
		n := len(runes)
		start, prevEnd, index := 0, 0, 0

		for start < n {
			end := s.boundary(runes, start, prevEnd)

			if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
				if !yield(Window{Index: index, Start: start, End: end, Text: chunk}) {
					return
				}
				index++
			}

			if end >= n {
				return
			}
			prevEnd = end

			next := end - s.overlap
			if next <= start {
				next = start + 1
			}
			start = next
		}
	}
}

// boundary returns the end of the window that starts at start. A break is only taken when
// the snapped end lies past prevEnd, so window ends strictly increase and a break already
// consumed by the previous window cannot pull later windows back onto it.
func (s *Segmenter) boundary(runes []rune, start, prevEnd int) int {
	n := len(runes)
	end := start + s.size
	if end >= n {
		return n
	}

	lo := max(end-paragraphRadius, start, prevEnd-1)
	hi := min(end+paragraphRadius, n)
	if p := find(runes, []rune("\n\n"), lo, hi); p != -1 && p > start {
		return p + 2
	}

	lo = max(end-lineRadius, start, prevEnd)
	hi = min(end+lineRadius, n)
	if p := find(runes, []rune("\n"), lo, hi); p != -1 && p > start {
		return p + 1
	}
	return end
}

// find returns the first index i in [from, to) such that sub lies entirely within
// runes[from:to], or -1.
func find(runes, sub []rune, from, to int) int {
	for i := from; i+len(sub) <= to; i++ {
		match := true
		for j, r := range sub {
			if runes[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Chunks segments text into linked chunks for docID. It fails with models.ErrValidation when
// the document would produce more chunks than the configured maximum.
func (s *Segmenter) Chunks(docID, text string) ([]*models.Chunk, error) {
	var chunks []*models.Chunk
	for w := range s.Windows(text) {
		if s.maxChunks > 0 && len(chunks) >= s.maxChunks {
			return nil, fmt.Errorf("%w: document %s exceeds %d chunks", models.ErrValidation, docID, s.maxChunks)
		}
		chars := utf8.RuneCountInString(w.Text)
		chunks = append(chunks, &models.Chunk{
			ID:           uuid.NewString(),
			DocumentID:   docID,
			ChunkIndex:   w.Index,
			Content:      w.Text,
			CharCount:    chars,
			TokenCount:   chars / 4,
			SectionTitle: SectionTitle(w.Text),
		})
	}

	for i, c := range chunks {
		if i > 0 {
			c.PrevChunkID = chunks[i-1].ID
			chunks[i-1].NextChunkID = c.ID
		}
	}
	return chunks, nil
}

// SectionTitle returns the first markdown-style heading among the first lines of text,
// without its leading '#' marks, or "".
func SectionTitle(text string) string {
	lines := strings.SplitN(text, "\n", titleScanLines+1)
	if len(lines) > titleScanLines {
		lines = lines[:titleScanLines]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}
