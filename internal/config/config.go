// Package config provides configuration loading and structs for the Kotae server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
)

// Config holds all configuration for the application. It is built once at startup;
// components receive the sub-structs they need by value.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	LLM       LLMConfig       `yaml:"llm"`
	Guard     GuardConfig     `yaml:"guard"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
}

// StorageConfig holds paths for the database and the keyword index.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// IngestConfig controls which uploads are admitted and how many documents run in parallel.
type IngestConfig struct {
	DataDir           string   `yaml:"data_dir"`
	MaxFileSize       int64    `yaml:"max_file_size"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	Workers           int      `yaml:"workers"`
}

// ChunkingConfig holds segmentation settings, in characters.
type ChunkingConfig struct {
	ChunkSize            int `yaml:"chunk_size"`
	ChunkOverlap         int `yaml:"chunk_overlap"`
	MaxChunksPerDocument int `yaml:"max_chunks_per_document"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is one of "openai", "onnx" or "hash".
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	Dimensions        int     `yaml:"dimensions"`
	BatchSize         int     `yaml:"batch_size"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	CostPer1KTokens   float64 `yaml:"cost_per_1k_tokens"`
	CacheSize         int     `yaml:"cache_size"`
	// ModelPath and MaxTokens apply to the onnx provider only.
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
}

// IndexConfig holds vector index sync settings.
type IndexConfig struct {
	SyncBatchSize int `yaml:"sync_batch_size"`
}

// RetrievalConfig holds similarity search settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// MinSimilarity is a pointer because 0 is a valid floor.
	MinSimilarity *float64 `yaml:"min_similarity"`
	// ContextWindow is the number of neighbouring chunks on each side joined into full_context.
	ContextWindow int `yaml:"context_window"`
}

// MinSimilarityOrDefault returns the configured floor, or 0.5 when unset.
func (r RetrievalConfig) MinSimilarityOrDefault() float64 {
	if r.MinSimilarity != nil {
		return *r.MinSimilarity
	}
	return defaultMinSimilarity
}

// LLMConfig holds generation provider settings.
type LLMConfig struct {
	Model             string   `yaml:"model"`
	Temperature       *float64 `yaml:"temperature"`
	MaxTokens         int      `yaml:"max_tokens"`
	BaseURL           string   `yaml:"base_url"`
	APIKeyEnv         string   `yaml:"api_key_env"`
	TimeoutSecs       int      `yaml:"timeout_secs"`
	MaxAttempts       int      `yaml:"max_attempts"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
}

// TemperatureOrDefault returns the configured temperature, or 0.7 when unset.
func (l LLMConfig) TemperatureOrDefault() float64 {
	if l.Temperature != nil {
		return *l.Temperature
	}
	return defaultTemperature
}

// GuardConfig holds query admission settings.
type GuardConfig struct {
	MaxQueryLength        int      `yaml:"max_query_length"`
	MinQueryLength        int      `yaml:"min_query_length"`
	MaxAnswerLength       int      `yaml:"max_answer_length"`
	DisableInjectionCheck bool     `yaml:"disable_injection_check"`
	DisableDomainCheck    bool     `yaml:"disable_domain_check"`
	DomainKeywords        []string `yaml:"domain_keywords"`
	// ShortQueryWords admits queries of at most this many words without a domain keyword.
	// 0 disables the bypass.
	ShortQueryWords *int `yaml:"short_query_words"`
}

// ShortQueryWordsOrDefault returns the configured bypass length, or 3 when unset.
func (g GuardConfig) ShortQueryWordsOrDefault() int {
	if g.ShortQueryWords != nil {
		return *g.ShortQueryWords
	}
	return defaultShortQueryWords
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults, expands paths and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Ingest.DataDir = expandPath(cfg.Ingest.DataDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration made only of defaults, with relative paths
// resolved against dir.
func Default(dir string) *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, dir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, dir)
	cfg.Ingest.DataDir = expandPath(cfg.Ingest.DataDir, dir)
	return &cfg
}

// Validate checks settings that would make the pipeline misbehave.
func (c *Config) Validate() error {
	ch := c.Chunking
	if ch.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", models.ErrValidation, ch.ChunkSize)
	}
	if ch.ChunkOverlap < 0 || ch.ChunkOverlap >= ch.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, %d), got %d", models.ErrValidation, ch.ChunkSize, ch.ChunkOverlap)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("%w: embedding batch_size must be positive", models.ErrValidation)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive", models.ErrValidation)
	}
	if s := c.Retrieval.MinSimilarityOrDefault(); s < 0 || s > 1 {
		return fmt.Errorf("%w: min_similarity must be in [0, 1], got %g", models.ErrValidation, s)
	}
	for _, ext := range c.Ingest.AllowedExtensions {
		if !extract.Supported(ext) {
			return fmt.Errorf("%w: no extractor for allowed extension %q", models.ErrValidation, ext)
		}
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderONNX, ProviderHash:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", models.ErrValidation, c.Embedding.Provider)
	}
	return nil
}

// expandPath converts a path to absolute. Relative paths resolve against configDir;
// a leading "~/" resolves against the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	return filepath.Join(configDir, path)
}
