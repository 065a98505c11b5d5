package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultBody  = "word/document.xml"
	contentTypesPath = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// Paragraphs may carry attributes (<w:p w:rsidR="...">); self-closing <w:p/> holds no text.
	wpBlock = regexp.MustCompile(`(?s)<w:p(?:\s[^>]*[^/])?>(.*?)</w:p>`)
	wtRun   = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)

	overrideTag = regexp.MustCompile(`<Override\s[^>]*>`)
	partNameRe  = regexp.MustCompile(`PartName="([^"]+)"`)
)

// docxBodyPath finds the main document part from [Content_Types].xml, falling back to
// word/document.xml.
func docxBodyPath(zr *zip.Reader) string {
	types, err := readZipFile(zr, contentTypesPath)
	if err != nil {
		return docxDefaultBody
	}
	for _, tag := range overrideTag.FindAllString(string(types), -1) {
		if !strings.Contains(tag, `ContentType="`+docxMainType+`"`) {
			continue
		}
		if m := partNameRe.FindStringSubmatch(tag); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return docxDefaultBody
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}

// extractDOCX returns the non-empty paragraphs of a .docx separated by blank lines,
// so paragraph breaks survive for the segmenter.
func extractDOCX(content []byte) (*Extraction, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	body, err := readZipFile(zr, docxBodyPath(zr))
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}

	var paragraphs []string
	for _, p := range wpBlock.FindAllStringSubmatch(string(body), -1) {
		var b strings.Builder
		for _, run := range wtRun.FindAllStringSubmatch(p[1], -1) {
			b.WriteString(html.UnescapeString(run[1]))
		}
		if text := b.String(); strings.TrimSpace(text) != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return &Extraction{Text: strings.Join(paragraphs, "\n\n")}, nil
}
