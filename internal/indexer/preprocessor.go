package indexer

import "strings"

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")

// Preprocess normalizes extracted text before segmentation: CRLF and lone CR become LF and
// NUL bytes are removed. Blank lines are kept since the segmenter snaps to them.
func Preprocess(text string) string {
	return lineEndings.Replace(text)
}
