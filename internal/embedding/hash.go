package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hyperjump/kotae/pkg/utils"
)

// HashProvider is an offline provider for development and tests. Each word is hashed into
// a signed bucket, so the same text always gets the same vector and texts sharing words
// point in similar directions.
type HashProvider struct {
	dimensions int
}

// NewHashProvider returns a provider that produces deterministic embeddings of the given dimensions.
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashProvider{dimensions: dimensions}
}

// CreateEmbeddings implements Provider.
func (p *HashProvider) CreateEmbeddings(ctx context.Context, _ string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embed(text)
	}
	return out, nil
}

func (p *HashProvider) embed(text string) []float32 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		words = []string{text}
	}

	emb := make([]float32, p.dimensions)
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		bucket := int(sum % uint64(p.dimensions))
		if sum&(1<<63) != 0 {
			emb[bucket]--
		} else {
			emb[bucket]++
		}
	}
	// A text whose buckets cancel out still needs a direction.
	if isZero(emb) {
		emb[int(tokenID(text))%p.dimensions] = 1
	}
	utils.NormalizeL2(emb)
	return emb
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Dimensions returns the embedding dimension.
func (p *HashProvider) Dimensions() int {
	return p.dimensions
}

// Close is a no-op.
func (p *HashProvider) Close() error {
	return nil
}
