package config

import (
	"fmt"
	"os"
	"strings"
)

// validSSLModes are the SSL modes accepted by libpq/pgx.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for consistency. All failures wrap a
// sentinel error so callers can match with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is not set", ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model name cannot be empty", ErrInvalidModelName)
	}
	if !strings.Contains(c.ModelName, "/") {
		return fmt.Errorf("%w: %q must be provider-qualified (e.g. %q)",
			ErrInvalidModelName, c.ModelName, DefaultModelName)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v must be in range [0, 2]", ErrInvalidTemperature, c.Temperature)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.EmbeddingDim != EmbeddingDimension {
		return fmt.Errorf("%w: %d does not match the vector(%d) schema",
			ErrInvalidEmbeddingDim, c.EmbeddingDim, EmbeddingDimension)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be in range [0, chunk size %d)",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	if c.RetrievalTopK < 1 || c.RetrievalTopK > 100 {
		return fmt.Errorf("%w: %d must be in range [1, 100]", ErrInvalidTopK, c.RetrievalTopK)
	}

	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("%w: %d must be in range [1, 65535]", ErrInvalidAPIPort, c.APIPort)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d must be in range [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: password cannot be empty", ErrInvalidPostgresPassword)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q is not a valid SSL mode", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}
