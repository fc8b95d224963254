package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a configuration that passes Validate().
func validConfig() *Config {
	return &Config{
		ModelName:        DefaultModelName,
		Temperature:      0.2,
		EmbedderModel:    DefaultEmbedderModel,
		EmbeddingDim:     EmbeddingDimension,
		ChunkSize:        DefaultChunkSize,
		ChunkOverlap:     DefaultChunkOverlap,
		MaxUploadBytes:   DefaultMaxUploadBytes,
		RetrievalTopK:    DefaultRetrievalTopK,
		APIHost:          "0.0.0.0",
		APIPort:          8000,
		LogLevel:         "info",
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "omnilearn",
		PostgresPassword: "secret",
		PostgresDBName:   "omnilearn",
		PostgresSSLMode:  "disable",
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:    "empty model name",
			modify:  func(c *Config) { c.ModelName = "" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "model name without provider prefix",
			modify:  func(c *Config) { c.ModelName = "gemini-2.0-flash" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "temperature too high",
			modify:  func(c *Config) { c.Temperature = 2.5 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "negative temperature",
			modify:  func(c *Config) { c.Temperature = -0.1 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "empty embedder model",
			modify:  func(c *Config) { c.EmbedderModel = "" },
			wantErr: ErrInvalidEmbedderModel,
		},
		{
			name:    "wrong embedding dimension",
			modify:  func(c *Config) { c.EmbeddingDim = 1536 },
			wantErr: ErrInvalidEmbeddingDim,
		},
		{
			name:    "zero chunk size",
			modify:  func(c *Config) { c.ChunkSize = 0 },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "overlap not smaller than chunk size",
			modify:  func(c *Config) { c.ChunkOverlap = c.ChunkSize },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "top-k zero",
			modify:  func(c *Config) { c.RetrievalTopK = 0 },
			wantErr: ErrInvalidTopK,
		},
		{
			name:    "top-k too large",
			modify:  func(c *Config) { c.RetrievalTopK = 500 },
			wantErr: ErrInvalidTopK,
		},
		{
			name:    "api port out of range",
			modify:  func(c *Config) { c.APIPort = 70000 },
			wantErr: ErrInvalidAPIPort,
		},
		{
			name:    "empty postgres host",
			modify:  func(c *Config) { c.PostgresHost = "" },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "postgres port out of range",
			modify:  func(c *Config) { c.PostgresPort = 0 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "empty database name",
			modify:  func(c *Config) { c.PostgresDBName = "" },
			wantErr: ErrInvalidPostgresDBName,
		},
		{
			name:    "empty password",
			modify:  func(c *Config) { c.PostgresPassword = "" },
			wantErr: ErrInvalidPostgresPassword,
		},
		{
			name:    "invalid ssl mode",
			modify:  func(c *Config) { c.PostgresSSLMode = "maybe" },
			wantErr: ErrInvalidPostgresSSLMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_NilConfig(t *testing.T) {
	var cfg *Config
	assert.ErrorIs(t, cfg.Validate(), ErrConfigNil)
}

func TestValidate_MissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	err := validConfig().Validate()
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestMarshalJSON_MasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super-secret"

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "super-secret")
	assert.Contains(t, string(data), maskedValue)
}

func TestMarshalJSON_EmptyPasswordNotMasked(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = ""

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	assert.NotContains(t, string(data), maskedValue)
}

func TestTracingConfig_Enabled(t *testing.T) {
	assert.False(t, TracingConfig{}.Enabled())
	assert.True(t, TracingConfig{Endpoint: "localhost:4318"}.Enabled())
}

func TestDefaults(t *testing.T) {
	assert.True(t, strings.HasPrefix(DefaultModelName, "googleai/"))
	assert.Equal(t, 768, EmbeddingDimension)
	assert.Greater(t, DefaultChunkSize, DefaultChunkOverlap)
}
