// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.omnilearn/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: model selection, temperature, embedder model/dimension
//   - Storage: PostgreSQL connection (see storage.go)
//   - Ingestion: chunk size/overlap, upload limits
//   - Retrieval: top-k
//   - Server: listen address, CORS, rate limiting, proxy trust
//   - Observability: optional OTLP trace export (see observability.go)
//
// Sensitive values (the PostgreSQL password) are masked in MarshalJSON.
// Validation uses sentinel errors checked with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the Gemini API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbeddingDim indicates the embedding dimension does not match
	// the vector schema.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidAPIPort indicates the API port is out of range.
	ErrInvalidAPIPort = errors.New("invalid API port")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultModelName is the default provider-qualified Gemini model.
	DefaultModelName = "googleai/gemini-2.0-flash"

	// DefaultEmbedderModel is the default Gemini embedder model.
	DefaultEmbedderModel = "text-embedding-004"

	// EmbeddingDimension is the vector dimension of the chunks schema.
	// The embedder output is truncated/validated to this size; see the
	// vector(768) column in db/migrations.
	EmbeddingDimension = 768

	// DefaultChunkSize is the default splitter chunk size in characters.
	DefaultChunkSize = 1500

	// DefaultChunkOverlap is the default splitter overlap in characters.
	DefaultChunkOverlap = 200

	// DefaultRetrievalTopK is the default number of chunks retrieved per query.
	DefaultRetrievalTopK = 10

	// DefaultMaxUploadBytes caps multipart file uploads (32 MiB).
	DefaultMaxUploadBytes = 32 << 20
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI configuration
	ModelName     string  `mapstructure:"model_name" json:"model_name"` // provider-qualified, e.g. "googleai/gemini-2.0-flash"
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDim  int     `mapstructure:"embedding_dim" json:"embedding_dim"`
	ModelRPM      int     `mapstructure:"model_rpm" json:"model_rpm"` // model call pacing, requests per minute (0 disables)

	// Ingestion configuration
	ChunkSize      int   `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap   int   `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" json:"max_upload_bytes"`

	// Retrieval configuration
	RetrievalTopK int `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`

	// Server configuration
	APIHost     string   `mapstructure:"api_host" json:"api_host"`
	APIPort     int      `mapstructure:"api_port" json:"api_port"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`   // per-IP token bucket burst (0 = default)

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug|info|warn|error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability configuration (see observability.go)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".omnilearn")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, if set, overrides the individual postgres_* values.
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
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", 0.2)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedding_dim", EmbeddingDimension)
	viper.SetDefault("model_rpm", 0)

	// Ingestion defaults
	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("max_upload_bytes", DefaultMaxUploadBytes)

	// Retrieval defaults
	viper.SetDefault("retrieval_top_k", DefaultRetrievalTopK)

	// Server defaults
	viper.SetDefault("api_host", "0.0.0.0")
	viper.SetDefault("api_port", 8000)
	viper.SetDefault("cors_origins", []string{"http://localhost", "http://localhost:8501"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 0)

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "omnilearn")
	viper.SetDefault("postgres_password", "omnilearn_dev_password")
	viper.SetDefault("postgres_db_name", "omnilearn")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Tracing defaults (disabled until an endpoint is configured)
	viper.SetDefault("tracing.endpoint", "")
	viper.SetDefault("tracing.service_name", "omnilearn")
	viper.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variable overrides explicitly.
//
// GEMINI_API_KEY is read directly by Genkit, not via Viper; its presence is
// checked in Validate().
func bindEnvVariables() {
	// Hardcoded keys can't fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "OMNILEARN_MODEL_NAME")
	mustBind("embedder_model", "OMNILEARN_EMBEDDER_MODEL")
	mustBind("api_host", "OMNILEARN_API_HOST")
	mustBind("api_port", "OMNILEARN_API_PORT")
	mustBind("cors_origins", "OMNILEARN_CORS_ORIGINS")
	mustBind("trust_proxy", "OMNILEARN_TRUST_PROXY")
	mustBind("rate_burst", "OMNILEARN_RATE_BURST")
	mustBind("log_level", "OMNILEARN_LOG_LEVEL")
	mustBind("tracing.endpoint", "OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = maskedValue
	}
	return json.Marshal(masked)
}
