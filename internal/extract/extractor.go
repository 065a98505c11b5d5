// Package extract turns uploaded files into plain text.
package extract

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Extraction is the text of a file plus what the format tells us about it.
type Extraction struct {
	Text string
	// NumPages is set for paged formats (PDF); zero otherwise.
	NumPages int
}

// Extractor extracts text from supported formats.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with leading dot) has an extractor.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".txt", ".md", ".xlsx":
		return true
	}
	return false
}

// ExtractBytes extracts text from content according to ext (with leading dot).
// Unsupported extensions and corrupt files fail with models.ErrValidation.
func (e *Extractor) ExtractBytes(content []byte, ext string) (*Extraction, error) {
	var (
		out *Extraction
		err error
	)
	switch strings.ToLower(ext) {
	case ".pdf":
		out, err = extractPDF(content)
	case ".docx":
		out, err = extractDOCX(content)
	case ".xlsx":
		out, err = extractExcel(content)
	case ".txt", ".md":
		out, err = extractPlain(content)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", models.ErrValidation, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return out, nil
}
