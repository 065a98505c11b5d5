// Package fileid derives stable document IDs from source file names and paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const (
	uploadPrefix = "doc_"
	pathPrefix   = "file_"
)

// DocumentID returns the ID for an uploaded document named name. Only the base name
// counts, so uploading a file again under the same name replaces it.
func DocumentID(name string) string {
	base := strings.TrimSpace(filepath.Base(filepath.Clean(name)))
	return uploadPrefix + digest(base)
}

// PathID returns the ID for a document read from disk at path. The absolute path counts,
// so files with the same name in different directories stay separate documents.
func PathID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return pathPrefix + digest(abs)
}

func digest(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:16])
}
