package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
)

func result(file, content string, similarity float64) *models.RetrievalResult {
	return &models.RetrievalResult{
		Chunk:       &models.Chunk{Content: "chunk of " + file},
		Document:    &models.Document{Filename: file},
		Similarity:  similarity,
		FullContext: content,
	}
}

func TestBuilder_Messages(t *testing.T) {
	b := NewBuilder("")
	msgs := b.Messages("What is RAG?", []*models.RetrievalResult{
		result("rag.md", "RAG retrieves before generating.", 0.91234),
		result("vectors.pdf", "Vectors encode meaning.", 0.5),
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, SystemMessage, msgs[0].Content)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)

	want := "CONTEXT:\n" +
		"--- Source 1 ---\nDocument: rag.md\nRelevance: 91.23%\n\nRAG retrieves before generating.\n" +
		"\n" +
		"--- Source 2 ---\nDocument: vectors.pdf\nRelevance: 50.00%\n\nVectors encode meaning.\n" +
		"\n\nQUESTION:\nWhat is RAG?\n\n" +
		"Please answer using the information from the context and cite the sources."
	assert.Equal(t, want, msgs[1].Content)
}

func TestBuilder_FallsBackToChunkContent(t *testing.T) {
	b := NewBuilder("custom system")
	ctx := b.Context([]*models.RetrievalResult{result("a.txt", "", 1)})
	assert.Contains(t, ctx, "chunk of a.txt")
	assert.Contains(t, ctx, "Relevance: 100.00%")
	assert.Equal(t, "custom system", b.Messages("q", nil)[0].Content)
}

func TestBuilder_EmptyContext(t *testing.T) {
	msgs := NewBuilder("").Messages("q", nil)
	assert.Equal(t, "CONTEXT:\n\n\nQUESTION:\nq\n\nPlease answer using the information from the context and cite the sources.", msgs[1].Content)
}
