// Package embedding turns chunk and query text into vectors: provider clients, a query
// cache, and the orchestrator that embeds a document's pending chunks batch by batch.
package embedding

import (
	"context"
	"unicode/utf8"
)

// Provider computes embeddings. CreateEmbeddings returns exactly one vector per input text,
// in input order.
type Provider interface {
	CreateEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// TokenCounter is implemented by providers that can count tokens exactly.
type TokenCounter interface {
	CountTokens(text string) int
}

// EstimateTokens approximates the token count of text as one token per four characters.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// CountTokens counts with p's tokenizer when it has one and estimates otherwise.
func CountTokens(p Provider, text string) int {
	if tc, ok := p.(TokenCounter); ok {
		return tc.CountTokens(text)
	}
	return EstimateTokens(text)
}
