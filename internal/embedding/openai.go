package embedding

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

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retry"
)

// DefaultBaseURL is the OpenAI API root used when none is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// OpenAIProvider calls an OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	client     *http.Client
	limiter    *retry.Limiter
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIProvider creates a provider from cfg. The API key is read from the environment
// variable named by cfg.APIKeyEnv.
func NewOpenAIProvider(cfg config.EmbeddingConfig) (*OpenAIProvider, error) {
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
	return &OpenAIProvider{
		client:     &http.Client{Timeout: timeout},
		limiter:    retry.NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		baseURL:    baseURL,
		apiKey:     key,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// CreateEmbeddings implements Provider. Rate-limit and server errors wrap
// models.ErrProviderTransient; other rejections are marked permanent.
func (p *OpenAIProvider) CreateEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if model == "" {
		model = p.model
	}

	reqBody := embeddingRequest{Model: model, Input: texts}
	// Only text-embedding-3-* accept a dimensions override.
	if strings.HasPrefix(model, "text-embedding-3") && p.dimensions > 0 {
		reqBody.Dimensions = p.dimensions
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", models.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", models.ErrProviderTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: openai embeddings: status %d: %s",
			models.ErrProviderTransient, resp.StatusCode, strings.TrimSpace(string(body)))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			p.limiter.Pause(retry.ParseRetryAfter(resp.Header.Get("Retry-After")))
			return nil, err
		case resp.StatusCode >= 500:
			return nil, err
		default:
			return nil, retry.Permanent(err)
		}
	}

	var out embeddingResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", models.ErrProviderTransient, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%w: openai error: %s", models.ErrProviderTransient, out.Error.Message)
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", models.ErrProviderTransient, d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	for i, e := range embeddings {
		if len(e) == 0 {
			return nil, fmt.Errorf("%w: no embedding returned for input %d", models.ErrProviderTransient, i)
		}
	}
	return embeddings, nil
}

// Dimensions returns the configured vector size.
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}

// Close releases resources.
func (p *OpenAIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
