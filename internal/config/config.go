// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.deskwise/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, generation model, embedder model
//   - Storage: PostgreSQL connection (see storage.go)
//   - RAG: retrieval and ingestion tuning (top-k, relevance threshold,
//     chunk size/overlap, processing timeout)
//   - Observability: OTLP trace export
//
// Validation is fail-fast with sentinel errors checkable via errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the generation model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidTopK indicates the retrieval result count is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidRelevanceThreshold indicates the similarity cutoff is out of range.
	ErrInvalidRelevanceThreshold = errors.New("invalid relevance threshold")

	// ErrInvalidChunking indicates the chunk size/overlap pair is unusable.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidProcessTimeout indicates the ingestion timeout is out of range.
	ErrInvalidProcessTimeout = errors.New("invalid process timeout")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// AI provider identifiers used in Config.Provider. The provider is resolved
// exactly once at startup; embedding and generation always share the same
// backend so vector spaces never mix within one process.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// DefaultGeminiEmbedderModel is the default Gemini embedder model.
// gemini-embedding-001 supports truncation to 768 dimensions, matching the
// pgvector column in db/migrations.
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// RAGConfig holds retrieval and ingestion tuning. The relevance threshold and
// result count are deliberately configuration, not hard-coded literals.
type RAGConfig struct {
	// TopK is the number of nearest chunks fetched per query.
	TopK int `mapstructure:"top_k" json:"top_k"`

	// RelevanceThreshold is the minimum cosine similarity for a retrieved
	// chunk to be used in answer context.
	RelevanceThreshold float64 `mapstructure:"relevance_threshold" json:"relevance_threshold"`

	// ChunkSize is the target chunk length in characters.
	ChunkSize int `mapstructure:"chunk_size" json:"chunk_size"`

	// ChunkOverlap is the number of characters adjacent chunks share.
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// ProcessTimeoutSeconds bounds one full document ingestion run, so a hung
	// embedding backend fails the document instead of blocking forever.
	ProcessTimeoutSeconds int `mapstructure:"process_timeout_seconds" json:"process_timeout_seconds"`

	// EmbedRPS throttles calls to the embedding backend (requests per second).
	EmbedRPS float64 `mapstructure:"embed_rps" json:"embed_rps"`
}

// ProcessTimeout returns the ingestion deadline as a duration.
func (r RAGConfig) ProcessTimeout() time.Duration {
	return time.Duration(r.ProcessTimeoutSeconds) * time.Second
}

// OTLPConfig holds trace export settings.
type OTLPConfig struct {
	// AgentHost is the OTLP HTTP endpoint of the local collector.
	AgentHost string `mapstructure:"agent_host" json:"agent_host"`

	// ServiceName identifies this service in traces.
	ServiceName string `mapstructure:"service_name" json:"service_name"`

	// Environment tags exported spans (dev, staging, prod).
	Environment string `mapstructure:"environment" json:"environment"`

	// Enabled toggles trace export entirely.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"`
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Contact shown in fallback and error answers.
	SupportContact string `mapstructure:"support_contact" json:"support_contact"`

	// Storage configuration (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"` // SENSITIVE: never serialized
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// RAG configuration
	RAG RAGConfig `mapstructure:"rag" json:"rag"`

	// Observability configuration
	OTLP OTLPConfig `mapstructure:"otlp" json:"otlp"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".deskwise")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL has highest priority for PostgreSQL settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	viper.SetDefault("ollama_host", "http://localhost:11434")
	viper.SetDefault("support_contact", "helpdesk@deskwise.local")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "deskwise")
	viper.SetDefault("postgres_password", "deskwise_dev_password")
	viper.SetDefault("postgres_db_name", "deskwise")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// RAG defaults
	viper.SetDefault("rag.top_k", 8)
	viper.SetDefault("rag.relevance_threshold", 0.3)
	viper.SetDefault("rag.chunk_size", 1000)
	viper.SetDefault("rag.chunk_overlap", 200)
	viper.SetDefault("rag.process_timeout_seconds", 120)
	viper.SetDefault("rag.embed_rps", 5.0)

	// OTLP defaults
	viper.SetDefault("otlp.agent_host", "localhost:4318")
	viper.SetDefault("otlp.service_name", "deskwise")
	viper.SetDefault("otlp.environment", "dev")
	viper.SetDefault("otlp.enabled", false)
}

// bindEnvVariables binds environment overrides explicitly.
//
// NOTE: GEMINI_API_KEY and OPENAI_API_KEY are read directly by the Genkit
// provider plugins, not via Viper. Validate() checks their presence based on
// the selected provider.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "DESKWISE_PROVIDER")
	mustBind("model_name", "DESKWISE_MODEL_NAME")
	mustBind("embedder_model", "DESKWISE_EMBEDDER_MODEL")
	mustBind("ollama_host", "DESKWISE_OLLAMA_HOST")
	mustBind("support_contact", "DESKWISE_SUPPORT_CONTACT")
	mustBind("otlp.enabled", "DESKWISE_OTLP_ENABLED")
	mustBind("otlp.agent_host", "DESKWISE_OTLP_AGENT_HOST")
}
