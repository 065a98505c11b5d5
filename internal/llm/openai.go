package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retry"
	"github.com/hyperjump/kotae/pkg/utils"
)

// DefaultBaseURL is the OpenAI API root used when none is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// OpenAI calls an OpenAI-compatible /chat/completions endpoint with bounded retries.
type OpenAI struct {
	client  *http.Client
	limiter *retry.Limiter
	backoff retry.Policy
	cfg     config.LLMConfig
	baseURL string
	apiKey  string
	logger  *zap.Logger
}

// Option configures an OpenAI client.
type Option func(*OpenAI)

// WithBackoff sets the delay policy between attempts.
func WithBackoff(p retry.Policy) Option {
	return func(c *OpenAI) { c.backoff = p }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *OpenAI) { c.logger = l }
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAI creates a chat client from cfg. The API key is read from the environment
// variable named by cfg.APIKeyEnv.
func NewOpenAI(cfg config.LLMConfig, opts ...Option) (*OpenAI, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("openai: missing API key in env %s", cfg.APIKeyEnv)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &OpenAI{
		client:  &http.Client{Timeout: timeout},
		limiter: retry.NewLimiter(cfg.RequestsPerSecond, 1),
		backoff: retry.Exponential{Initial: time.Second, Max: 10 * time.Second},
		cfg:     cfg,
		baseURL: baseURL,
		apiKey:  key,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c, nil
}

// Complete implements Generator. Transient failures are retried up to the configured
// number of attempts.
func (c *OpenAI) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: completion needs at least one message", models.ErrValidation)
	}
	body := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: c.cfg.TemperatureOrDefault(),
		MaxTokens:   req.MaxTokens,
	}
	if body.Model == "" {
		body.Model = c.cfg.Model
	}
	if req.Temperature != nil {
		body.Temperature = *req.Temperature
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = c.cfg.MaxTokens
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	attempts := max(c.cfg.MaxAttempts, 1)
	var out *Completion
	err = retry.Do(ctx, attempts, c.backoff, func(attempt int) error {
		res, err := c.send(ctx, payload)
		if err != nil {
			c.logger.Warn("chat completion attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", attempts),
				zap.Error(err),
			)
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Model == "" {
		out.Model = body.Model
	}
	out.Cost = Cost(out.Model, out.PromptTokens, out.CompletionTokens)
	return out, nil
}

func (c *OpenAI) send(ctx context.Context, payload []byte) (*Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", models.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", models.ErrProviderTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: openai chat: status %d: %s",
			models.ErrProviderTransient, resp.StatusCode, strings.TrimSpace(string(data)))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			c.limiter.Pause(retry.ParseRetryAfter(resp.Header.Get("Retry-After")))
			return nil, err
		case resp.StatusCode >= 500:
			return nil, err
		default:
			return nil, retry.Permanent(err)
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", models.ErrProviderTransient, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai chat: no choices returned", models.ErrProviderTransient)
	}

	choice := parsed.Choices[0]
	return &Completion{
		Text:             choice.Message.Content,
		Model:            parsed.Model,
		FinishReason:     choice.FinishReason,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}, nil
}

// Close releases idle connections.
func (c *OpenAI) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
