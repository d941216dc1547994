package config

import (
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/codescout/codescout/domain/vector"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CODESCOUT"

// EnvConfig holds all environment-based configuration. Field names map
// to environment variables with the CODESCOUT_ prefix, nested structs
// use underscore delimiters (e.g. CODESCOUT_EMBEDDING_BASE_URL).
type EnvConfig struct {
	// PersistDir is where indexes live on disk.
	// Env: CODESCOUT_PERSIST_DIR (default: ~/.codescout)
	PersistDir string `envconfig:"PERSIST_DIR"`

	// LogLevel is the log verbosity level.
	// Env: CODESCOUT_LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: CODESCOUT_LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// Embedding configures the embedding service.
	Embedding EmbeddingEnv `envconfig:"EMBEDDING"`

	// Vector configures the vector store defaults.
	Vector VectorEnv `envconfig:"VECTOR"`

	// BatchSize is how many chunks are embedded per API call.
	// Env: CODESCOUT_BATCH_SIZE (default: 64)
	BatchSize int `envconfig:"BATCH_SIZE" default:"64"`

	// Parallelism bounds concurrent embedding batches.
	// Env: CODESCOUT_PARALLELISM (default: 1)
	Parallelism int `envconfig:"PARALLELISM" default:"1"`
}

// EmbeddingEnv holds environment configuration for the embedding endpoint.
type EmbeddingEnv struct {
	// BaseURL is the base URL for an OpenAI-compatible API.
	// Env: CODESCOUT_EMBEDDING_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the embedding model identifier.
	// Env: CODESCOUT_EMBEDDING_MODEL
	Model string `envconfig:"MODEL"`

	// APIKey is the API key for authentication. OPENAI_API_KEY is used
	// as a fallback when unset.
	// Env: CODESCOUT_EMBEDDING_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: CODESCOUT_EMBEDDING_TIMEOUT (default: 30)
	Timeout float64 `envconfig:"TIMEOUT" default:"30"`

	// MaxRetries is the maximum number of retries.
	// Env: CODESCOUT_EMBEDDING_MAX_RETRIES (default: 3)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"3"`

	// InitialDelay is the initial retry delay in seconds.
	// Env: CODESCOUT_EMBEDDING_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry backoff multiplier.
	// Env: CODESCOUT_EMBEDDING_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`
}

// VectorEnv holds environment configuration for the vector store defaults.
type VectorEnv struct {
	// Device is the compute device preference (auto, cuda, mps, cpu).
	// Env: CODESCOUT_VECTOR_DEVICE (default: auto)
	Device string `envconfig:"DEVICE" default:"auto"`

	// Metric is the similarity metric (ip or l2).
	// Env: CODESCOUT_VECTOR_METRIC (default: ip)
	Metric string `envconfig:"METRIC" default:"ip"`

	// SearchMode selects exact or approximate search.
	// Env: CODESCOUT_VECTOR_SEARCH_MODE (default: exact)
	SearchMode string `envconfig:"SEARCH_MODE" default:"exact"`

	// SampleRate is the approximate-search sampling rate in (0, 1].
	// Env: CODESCOUT_VECTOR_SAMPLE_RATE (default: 1.0)
	SampleRate float64 `envconfig:"SAMPLE_RATE" default:"1.0"`

	// MaxVRAMMB caps search working memory in MiB; zero is unbounded.
	// Env: CODESCOUT_VECTOR_MAX_VRAM_MB (default: 0)
	MaxVRAMMB int `envconfig:"MAX_VRAM_MB" default:"0"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	opts := []AppConfigOption{
		WithEmbeddingEndpoint(e.Embedding.ToEndpoint()),
		WithVectorConfig(e.Vector.ToVectorConfig()),
		WithBatchSize(e.BatchSize),
		WithParallelism(e.Parallelism),
	}
	if e.PersistDir != "" {
		opts = append(opts, WithPersistDir(e.PersistDir))
	}
	if e.LogLevel != "" {
		opts = append(opts, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		opts = append(opts, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	return NewAppConfigWithOptions(opts...)
}

// ToEndpoint converts EmbeddingEnv to Endpoint.
func (e EmbeddingEnv) ToEndpoint() Endpoint {
	opts := []EndpointOption{
		WithTimeout(time.Duration(e.Timeout * float64(time.Second))),
		WithMaxRetries(e.MaxRetries),
		WithInitialDelay(time.Duration(e.InitialDelay * float64(time.Second))),
		WithBackoffFactor(e.BackoffFactor),
	}
	if e.BaseURL != "" {
		opts = append(opts, WithBaseURL(e.BaseURL))
	}
	if e.Model != "" {
		opts = append(opts, WithModel(e.Model))
	}
	apiKey := e.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey != "" {
		opts = append(opts, WithAPIKey(apiKey))
	}
	return NewEndpointWithOptions(opts...)
}

// ToVectorConfig converts VectorEnv to a vector.Config. Values are not
// validated here; the store rejects bad configurations when opened.
func (v VectorEnv) ToVectorConfig() vector.Config {
	cfg := vector.DefaultConfig()
	if v.Device != "" {
		cfg.Device = v.Device
	}
	if v.Metric != "" {
		cfg.Metric = vector.Metric(strings.ToLower(v.Metric))
	}
	if v.SearchMode != "" {
		cfg.SearchMode = vector.SearchMode(strings.ToLower(v.SearchMode))
	}
	if v.SampleRate != 0 {
		cfg.Approx.SampleRate = v.SampleRate
	}
	cfg.MaxVRAMMB = v.MaxVRAMMB
	return cfg
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
