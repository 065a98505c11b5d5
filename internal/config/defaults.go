package config

// Embedding provider names.
const (
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderHash   = "hash"
)

const (
	defaultMinSimilarity   = 0.5
	defaultTemperature     = 0.7
	defaultShortQueryWords = 3
)

// DefaultAllowedExtensions are the upload types accepted when none are configured.
var DefaultAllowedExtensions = []string{".pdf", ".docx", ".txt", ".md"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 60
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/kotae.db"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "./data/indices/bleve"
	}

	if cfg.Ingest.DataDir == "" {
		cfg.Ingest.DataDir = "./data/documents"
	}
	if cfg.Ingest.MaxFileSize == 0 {
		cfg.Ingest.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.Ingest.AllowedExtensions == nil {
		cfg.Ingest.AllowedExtensions = append([]string(nil), DefaultAllowedExtensions...)
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 2
	}

	// An explicit overlap of 0 is kept only alongside an explicit chunk size.
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 500
		if cfg.Chunking.ChunkOverlap == 0 {
			cfg.Chunking.ChunkOverlap = 100
		}
	}
	if cfg.Chunking.MaxChunksPerDocument == 0 {
		cfg.Chunking.MaxChunksPerDocument = 10000
	}

	e := &cfg.Embedding
	if e.Provider == "" {
		e.Provider = ProviderOpenAI
	}
	if e.Model == "" {
		e.Model = "text-embedding-3-small"
	}
	if e.Dimensions == 0 {
		e.Dimensions = 1536
	}
	if e.BatchSize == 0 {
		e.BatchSize = 5
	}
	if e.BaseURL == "" {
		e.BaseURL = "https://api.openai.com/v1"
	}
	if e.APIKeyEnv == "" {
		e.APIKeyEnv = "OPENAI_API_KEY"
	}
	if e.TimeoutSecs == 0 {
		e.TimeoutSecs = 30
	}
	if e.MaxAttempts == 0 {
		e.MaxAttempts = 3
	}
	if e.InitialBackoffMs == 0 {
		e.InitialBackoffMs = 1000
	}
	if e.MaxBackoffMs == 0 {
		e.MaxBackoffMs = 30000
	}
	if e.RequestsPerSecond == 0 {
		e.RequestsPerSecond = 3
	}
	if e.Burst == 0 {
		e.Burst = 1
	}
	if e.CostPer1KTokens == 0 {
		e.CostPer1KTokens = 0.0001
	}
	if e.CacheSize == 0 {
		e.CacheSize = 1000
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = 256
	}

	if cfg.Index.SyncBatchSize == 0 {
		cfg.Index.SyncBatchSize = 50
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.MinSimilarity == nil {
		v := defaultMinSimilarity
		cfg.Retrieval.MinSimilarity = &v
	}

	l := &cfg.LLM
	if l.Model == "" {
		l.Model = "gpt-3.5-turbo"
	}
	if l.Temperature == nil {
		v := defaultTemperature
		l.Temperature = &v
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = 800
	}
	if l.BaseURL == "" {
		l.BaseURL = "https://api.openai.com/v1"
	}
	if l.APIKeyEnv == "" {
		l.APIKeyEnv = "OPENAI_API_KEY"
	}
	if l.TimeoutSecs == 0 {
		l.TimeoutSecs = 60
	}
	if l.MaxAttempts == 0 {
		l.MaxAttempts = 3
	}
	if l.RequestsPerSecond == 0 {
		l.RequestsPerSecond = 3
	}

	g := &cfg.Guard
	if g.MaxQueryLength == 0 {
		g.MaxQueryLength = 500
	}
	if g.MinQueryLength == 0 {
		g.MinQueryLength = 3
	}
	if g.MaxAnswerLength == 0 {
		g.MaxAnswerLength = 2000
	}
	if g.ShortQueryWords == nil {
		v := defaultShortQueryWords
		g.ShortQueryWords = &v
	}

	if cfg.Watch.Enabled && len(cfg.Watch.Directories) == 0 {
		cfg.Watch.Directories = []string{cfg.Ingest.DataDir}
	}
	if cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
