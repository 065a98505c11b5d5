// Package llm generates answers through a chat-completion provider.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest asks for one completion. Zero values fall back to the client's configuration.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// Completion is a generated answer with its usage.
type Completion struct {
	Text             string  `json:"text"`
	Model            string  `json:"model"`
	FinishReason     string  `json:"finish_reason"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

// Generator produces completions.
type Generator interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Unavailable stands in when no provider could be configured, so that everything except
// generation keeps working. Every call fails with Err.
type Unavailable struct {
	Err error
}

// Complete implements Generator.
func (u Unavailable) Complete(context.Context, CompletionRequest) (*Completion, error) {
	return nil, fmt.Errorf("%w: generation unavailable: %v", models.ErrProviderTransient, u.Err)
}

type price struct {
	input, output float64
}

var (
	gpt4Price    = price{input: 0.03, output: 0.06}
	defaultPrice = price{input: 0.0005, output: 0.0015}
)

// Cost returns the USD cost of a completion, per 1k tokens, rounded to 6 places.
func Cost(model string, promptTokens, completionTokens int) float64 {
	p := defaultPrice
	if strings.Contains(model, "gpt-4") {
		p = gpt4Price
	}
	total := float64(promptTokens)/1000*p.input + float64(completionTokens)/1000*p.output
	return utils.Round(total, 6)
}
