package types

import "time"

// HTTPConfig holds shared HTTP settings used by connectors and embedders.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "metasearch/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ConnectorConfig holds settings for provider connectors.
type ConnectorConfig struct {
	HTTPConfig `yaml:",inline"`

	// PageDelay is the pause between consecutive page requests to one
	// provider (default 1s).
	PageDelay time.Duration `json:"page_delay" yaml:"page_delay"`

	// MaxPages caps the pages fetched per dispatch regardless of the
	// provider's results_per_query (default 10).
	MaxPages int `json:"max_pages" yaml:"max_pages"`
}

// RelevancyConfig holds settings for relevancy scoring and highlighting.
type RelevancyConfig struct {
	// HighlightStart and HighlightEnd wrap matched terms (default <em>, </em>).
	HighlightStart string `json:"highlight_start" yaml:"highlight_start"`
	HighlightEnd   string `json:"highlight_end" yaml:"highlight_end"`

	// MaxFieldLen truncates highlight fragments (default 512).
	MaxFieldLen int `json:"max_field_len" yaml:"max_field_len"`
}

// DedupConfig holds settings for duplicate detection.
type DedupConfig struct {
	// KeyField is matched exactly (default "url").
	KeyField string `json:"key_field" yaml:"key_field"`

	// SimilarityFields are concatenated for the fuzzy comparison
	// (default title, body).
	SimilarityFields []string `json:"similarity_fields" yaml:"similarity_fields"`

	// Threshold is the minimum similarity for a duplicate (default 0.95).
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// DispatchConfig holds settings for the worker pool and search waits.
type DispatchConfig struct {
	// PoolSize is the number of concurrent provider work units (default 16).
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// Searches is the number of queued tasks a worker drives at once (default 4).
	Searches int `json:"searches" yaml:"searches"`

	// SearchTimeout bounds the wait for all providers of one dispatch (default 10s).
	SearchTimeout time.Duration `json:"search_timeout" yaml:"search_timeout"`

	// ReadyWait bounds how long synchronous callers wait for a ready status (default 20s).
	ReadyWait time.Duration `json:"ready_wait" yaml:"ready_wait"`

	// PollInterval is the status poll period for synchronous waits (default 200ms).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

// EmbeddingConfig selects and configures the embedding capability.
type EmbeddingConfig struct {
	// Backend is "openai" or "hash" (default "hash").
	Backend string `json:"backend" yaml:"backend"`

	// BaseURL is the OpenAI-compatible endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Model is the embedding model name.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// APIKey authenticates against BaseURL.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Dimensions is the vector size of the hash embedder (default 256).
	Dimensions int `json:"dimensions" yaml:"dimensions"`

	// CacheSize is the number of cached embeddings (default 4096, 0 disables).
	CacheSize int `json:"cache_size" yaml:"cache_size"`
}

// QueueConfig selects the task queue.
type QueueConfig struct {
	// Backend is "memory" or "redis" (default "memory").
	Backend string `json:"backend" yaml:"backend"`

	// RedisURL is a redis:// URL used by the redis backend.
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`

	// Key is the Redis list holding pending tasks (default "metasearch:tasks").
	Key string `json:"key" yaml:"key"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	// Path is the sqlite database file (default "metasearch.db").
	Path string `json:"path" yaml:"path"`
}

// EngineConfig groups all settings for the search engine.
type EngineConfig struct {
	Connector ConnectorConfig `json:"connector" yaml:"connector"`
	Relevancy RelevancyConfig `json:"relevancy" yaml:"relevancy"`
	Dedup     DedupConfig     `json:"dedup" yaml:"dedup"`
	Dispatch  DispatchConfig  `json:"dispatch" yaml:"dispatch"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	Queue     QueueConfig     `json:"queue" yaml:"queue"`
	Store     StoreConfig     `json:"store" yaml:"store"`

	// DefaultMixer is used when a search names none (default "relevancy").
	DefaultMixer string `json:"default_mixer" yaml:"default_mixer"`

	// DefaultProcessor is used when a search names none (default "lexical").
	DefaultProcessor string `json:"default_processor" yaml:"default_processor"`

	// ResultsRequested is the default page size for mixed results (default 10).
	ResultsRequested int `json:"results_requested" yaml:"results_requested"`
}

// DefaultEngineConfig returns the configuration used when nothing is overridden.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Connector: ConnectorConfig{
			HTTPConfig: HTTPConfig{Timeout: 10 * time.Second, UserAgent: "metasearch/0.1"},
			PageDelay:  time.Second,
			MaxPages:   10,
		},
		Relevancy: RelevancyConfig{HighlightStart: "<em>", HighlightEnd: "</em>", MaxFieldLen: 512},
		Dedup:     DedupConfig{KeyField: "url", SimilarityFields: []string{"title", "body"}, Threshold: 0.95},
		Dispatch: DispatchConfig{
			PoolSize:      16,
			Searches:      4,
			SearchTimeout: 10 * time.Second,
			ReadyWait:     20 * time.Second,
			PollInterval:  200 * time.Millisecond,
		},
		Embedding:        EmbeddingConfig{Backend: "hash", Dimensions: 256, CacheSize: 4096},
		Queue:            QueueConfig{Backend: "memory", Key: "metasearch:tasks"},
		Store:            StoreConfig{Path: "metasearch.db"},
		DefaultMixer:     "relevancy",
		DefaultProcessor: "lexical",
		ResultsRequested: 10,
	}
}
