package extract

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// extractPlain returns UTF-8 content unchanged; anything else is decoded as Latin-1,
// which maps every byte and so never fails.
func extractPlain(content []byte) (*Extraction, error) {
	content = []byte(strings.TrimPrefix(string(content), "\ufeff"))
	if utf8.Valid(content) {
		return &Extraction{Text: string(content)}, nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return nil, err
	}
	return &Extraction{Text: string(decoded)}, nil
}
