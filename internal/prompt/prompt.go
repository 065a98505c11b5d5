// Package prompt turns a question and its retrieved sources into chat messages.
package prompt

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
)

// SystemMessage scopes the assistant to the indexed topics and asks for cited answers.
const SystemMessage = `You are an assistant specialized in Artificial Intelligence, Machine Learning, Natural Language Processing (NLP) and Retrieval-Augmented Generation (RAG).

Your responsibilities:
1. Answer questions ONLY about AI, ML, NLP and RAG
2. Base your answers on the provided CONTEXT
3. Cite sources using [Source N] at the end of each piece of information
4. Be precise, technical and objective
5. Admit when there is not enough information in the context

Important rules:
- If the question is OUTSIDE the scope (AI/ML/NLP/RAG), politely respond that you cannot help
- If the context does not contain relevant information, say that you don't have enough data
- NEVER invent information that is not in the context
- Keep responses concise (maximum 3 paragraphs)
- Use appropriate technical language, but accessible`

// Builder assembles conversation prompts.
type Builder struct {
	system string
}

// NewBuilder returns a builder using system as the system message, or SystemMessage when empty.
func NewBuilder(system string) *Builder {
	if strings.TrimSpace(system) == "" {
		system = SystemMessage
	}
	return &Builder{system: system}
}

// Context renders results as numbered sources, most similar first.
func (b *Builder) Context(results []*models.RetrievalResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		content := r.FullContext
		if content == "" && r.Chunk != nil {
			content = r.Chunk.Content
		}
		name := ""
		if r.Document != nil {
			name = r.Document.Filename
		}
		parts = append(parts, fmt.Sprintf("--- Source %d ---\nDocument: %s\nRelevance: %.2f%%\n\n%s\n",
			i+1, name, r.Similarity*100, content))
	}
	return strings.Join(parts, "\n")
}

// Messages returns the system message followed by the user turn carrying context and question.
func (b *Builder) Messages(question string, results []*models.RetrievalResult) []llm.Message {
	user := fmt.Sprintf("CONTEXT:\n%s\n\nQUESTION:\n%s\n\nPlease answer using the information from the context and cite the sources.",
		b.Context(results), question)
	return []llm.Message{
		{Role: llm.RoleSystem, Content: b.system},
		{Role: llm.RoleUser, Content: user},
	}
}
