// Package knowledge implements the vector-backed knowledge base.
//
// Every ingested source (document, web page, video) is stored as a set of
// chunks in PostgreSQL with pgvector embeddings. Sources are not a separate
// table: a source is the group of chunks sharing a source_id, and source
// listings aggregate over the chunks table.
package knowledge

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested source does not exist.
var ErrNotFound = errors.New("source not found")

// SourceType classifies where a source's content came from.
type SourceType string

const (
	SourceTypeDocument SourceType = "document"
	SourceTypeWebPage  SourceType = "web_page"
	SourceTypeVideo    SourceType = "video"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceTypeDocument, SourceTypeWebPage, SourceTypeVideo:
		return true
	}
	return false
}

// Chunk is a stored content chunk. Similarity is only populated on search
// results (cosine similarity to the query, higher is closer).
type Chunk struct {
	ID         uuid.UUID      `json:"id"`
	SourceID   uuid.UUID      `json:"source_id"`
	SourceName string         `json:"source_name"`
	SourceType SourceType     `json:"source_type"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
	Similarity float64        `json:"similarity,omitempty"`
}

// ChunkInput is a chunk pending insertion; the store assigns IDs and
// computes embeddings.
type ChunkInput struct {
	Content  string
	Metadata map[string]any
}

// Source is the aggregate view of one ingested source.
type Source struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Type       SourceType `json:"type"`
	ChunkCount int        `json:"chunk_count"`
	CreatedAt  time.Time  `json:"created_at"`
}
