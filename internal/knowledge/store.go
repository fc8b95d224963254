package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// chunkCols is the standard SELECT column list for scanChunks.
const chunkCols = `id, source_id, source_name, source_type, content, metadata, created_at`

const (
	// VectorDimension must match the vector(N) column in db/migrations.
	VectorDimension = 768

	// EmbedTimeout bounds a single embedding API call.
	EmbedTimeout = 30 * time.Second

	// embedBatchSize caps how many chunks go into one embed request.
	embedBatchSize = 100

	// MaxTopK caps search result size regardless of the requested top-k.
	MaxTopK = 50
)

// Store manages chunks backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a chunk Store.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// embed generates vectors for the given texts in a single embed request.
func (s *Store) embed(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	dim := int32(VectorDimension)
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	resp, err := s.embedder.Embed(embedCtx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
	}

	vecs := make([]pgvector.Vector, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vecs[i] = pgvector.NewVector(e.Embedding)
	}
	return vecs, nil
}

// AddChunks embeds and inserts all chunks for a source atomically.
// Returns the number of chunks stored.
func (s *Store) AddChunks(ctx context.Context, sourceID uuid.UUID, sourceName string, sourceType SourceType, inputs []ChunkInput) (int, error) {
	if sourceName == "" {
		return 0, fmt.Errorf("source name is required")
	}
	if !sourceType.Valid() {
		return 0, fmt.Errorf("invalid source type: %q", sourceType)
	}
	if len(inputs) == 0 {
		return 0, fmt.Errorf("no chunks to add")
	}

	// Embed everything first so a mid-batch embedding failure never leaves
	// a half-stored source behind.
	vecs := make([]pgvector.Vector, 0, len(inputs))
	for start := 0; start < len(inputs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(inputs))
		texts := make([]string, 0, end-start)
		for _, in := range inputs[start:end] {
			texts = append(texts, in.Content)
		}
		batch, err := s.embed(ctx, texts)
		if err != nil {
			return 0, err
		}
		vecs = append(vecs, batch...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	batch := &pgx.Batch{}
	for i, in := range inputs {
		metadata := in.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		batch.Queue(
			`INSERT INTO chunks (source_id, source_name, source_type, content, embedding, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			sourceID, sourceName, string(sourceType), in.Content, vecs[i], metadata,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range inputs {
		if _, execErr := results.Exec(); execErr != nil {
			_ = results.Close()
			return 0, fmt.Errorf("inserting chunk: %w", execErr)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("closing insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing chunks: %w", err)
	}

	s.logger.Debug("stored chunks",
		"source_id", sourceID, "source_name", sourceName, "count", len(inputs))
	return len(inputs), nil
}

// Search finds chunks similar to the query, ordered by cosine similarity
// descending. When sourceIDs is non-empty, only chunks from those sources
// are considered.
func (s *Store) Search(ctx context.Context, query string, sourceIDs []uuid.UUID, topK int) ([]*Chunk, error) {
	if query == "" {
		return []*Chunk{}, nil
	}
	if topK <= 0 {
		topK = 10
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	vecs, err := s.embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	vec := vecs[0]

	var rows pgx.Rows
	if len(sourceIDs) > 0 {
		rows, err = s.pool.Query(ctx,
			`SELECT `+chunkCols+`, 1 - (embedding <=> $1) AS similarity
			 FROM chunks
			 WHERE source_id = ANY($2)
			 ORDER BY embedding <=> $1
			 LIMIT $3`,
			vec, sourceIDs, topK,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+chunkCols+`, 1 - (embedding <=> $1) AS similarity
			 FROM chunks
			 ORDER BY embedding <=> $1
			 LIMIT $2`,
			vec, topK,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows, true)
}

// ListSources returns all sources, newest first, aggregated from chunks.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_id, source_name, source_type, COUNT(*), MIN(created_at)
		 FROM chunks
		 GROUP BY source_id, source_name, source_type
		 ORDER BY MIN(created_at) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	sources := []*Source{}
	for rows.Next() {
		src := &Source{}
		if err := rows.Scan(&src.ID, &src.Name, &src.Type, &src.ChunkCount, &src.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}
	return sources, nil
}

// GetSource returns the aggregate view of a single source.
// Returns ErrNotFound if no chunks exist for the ID.
func (s *Store) GetSource(ctx context.Context, id uuid.UUID) (*Source, error) {
	src := &Source{}
	err := s.pool.QueryRow(ctx,
		`SELECT source_id, source_name, source_type, COUNT(*), MIN(created_at)
		 FROM chunks
		 WHERE source_id = $1
		 GROUP BY source_id, source_name, source_type`,
		id,
	).Scan(&src.ID, &src.Name, &src.Type, &src.ChunkCount, &src.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting source %s: %w", id, err)
	}
	return src, nil
}

// SourceExists reports whether any chunk was ingested under the given
// source name and type. Ingestion uses this for idempotent re-uploads;
// names are unique per type, so a web page and a document may share one.
func (s *Store) SourceExists(ctx context.Context, name string, typ SourceType) (bool, uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT source_id FROM chunks WHERE source_name = $1 AND source_type = $2 LIMIT 1`,
		name, string(typ),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, uuid.Nil, nil
	}
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("checking source %q: %w", name, err)
	}
	return true, id, nil
}

// ChunksBySource returns all chunks of a source in insertion order.
// Returns ErrNotFound if the source has no chunks.
func (s *Store) ChunksBySource(ctx context.Context, sourceID uuid.UUID) ([]*Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+chunkCols+`
		 FROM chunks
		 WHERE source_id = $1
		 ORDER BY created_at ASC, id ASC`,
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chunks for source %s: %w", sourceID, err)
	}
	defer rows.Close()

	chunks, err := scanChunks(rows, false)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNotFound
	}
	return chunks, nil
}

// DeleteSource removes all chunks of a source. Returns the number of chunks
// deleted, or ErrNotFound if the source does not exist.
func (s *Store) DeleteSource(ctx context.Context, id uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE source_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("deleting source %s: %w", id, err)
	}
	deleted := int(tag.RowsAffected())
	if deleted == 0 {
		return 0, ErrNotFound
	}

	s.logger.Info("deleted source", "source_id", id, "chunks", deleted)
	return deleted, nil
}

// scanChunks reads Chunk structs from pgx.Rows. When withSimilarity is true,
// a trailing similarity column is expected.
func scanChunks(rows pgx.Rows, withSimilarity bool) ([]*Chunk, error) {
	chunks := []*Chunk{}
	for rows.Next() {
		c := &Chunk{}
		dest := []any{&c.ID, &c.SourceID, &c.SourceName, &c.SourceType, &c.Content, &c.Metadata, &c.CreatedAt}
		if withSimilarity {
			dest = append(dest, &c.Similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}
