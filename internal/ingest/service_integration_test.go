package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnilearn/omnilearn/internal/knowledge"
	"github.com/omnilearn/omnilearn/internal/log"
	"github.com/omnilearn/omnilearn/internal/testutil"
)

func setupService(t *testing.T) (*Service, *knowledge.Store) {
	t.Helper()

	pool := testutil.SetupTestDB(t)
	g := testutil.NewGenkit(t)
	embedder := testutil.NewMockEmbedder(knowledge.VectorDimension).Register(g)

	store, err := knowledge.NewStore(pool, embedder, log.NewNop())
	require.NoError(t, err)

	svc, err := NewService(store, NewSplitter(1500, 200), NewWebFetcher(), fakeYouTube(t), log.NewNop())
	require.NoError(t, err)
	return svc, store
}

func TestService_IngestFile(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	result, err := svc.IngestFile(ctx, "biology.txt", []byte("Cells are the basic unit of life."))
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, result.Status)
	assert.Equal(t, "biology.txt", result.SourceName)
	assert.Equal(t, 1, result.ChunkCount)

	src, err := store.GetSource(ctx, result.SourceID)
	require.NoError(t, err)
	assert.Equal(t, knowledge.SourceTypeDocument, src.Type)
}

func TestService_IngestFile_DuplicateName(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	first, err := svc.IngestFile(ctx, "dup.txt", []byte("original content"))
	require.NoError(t, err)

	second, err := svc.IngestFile(ctx, "dup.txt", []byte("different content entirely"))
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyExists, second.Status)
	assert.Equal(t, first.SourceID, second.SourceID)
	assert.Zero(t, second.ChunkCount)
}

func TestService_IngestFile_SameNameOtherTypeIsNotADuplicate(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	// A web page already ingested under this name must not block a file
	// upload with the same name; dedupe is per source type.
	webID := uuid.New()
	_, err := store.AddChunks(ctx, webID, "notes.txt", knowledge.SourceTypeWebPage,
		[]knowledge.ChunkInput{{Content: "page content", Metadata: map[string]any{"page": 1}}})
	require.NoError(t, err)

	result, err := svc.IngestFile(ctx, "notes.txt", []byte("file content"))
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, result.Status)
	assert.Equal(t, string(knowledge.SourceTypeDocument), result.SourceType)
	assert.NotEqual(t, webID, result.SourceID)
}

func TestService_IngestFile_UnsupportedFormat(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.IngestFile(context.Background(), "photo.jpeg", []byte{0xff})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_IngestURL(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	result, err := svc.IngestURL(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, result.Status)
	assert.NotEmpty(t, result.SourceName)
	assert.Greater(t, result.ChunkCount, 0)

	chunks, err := store.ChunksBySource(ctx, result.SourceID)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, chunks[0].Metadata["url"])
	assert.Equal(t, float64(1), chunks[0].Metadata["page"])
}

func TestService_IngestVideo(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	result, err := svc.IngestVideo(ctx, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, result.Status)
	assert.Equal(t, "Learning Go", result.SourceName)
	assert.Equal(t, 1, result.ChunkCount)

	chunks, err := store.ChunksBySource(ctx, result.SourceID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "YouTube video: https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", chunks[0].Metadata["url"])

	// Re-ingesting the same video is idempotent.
	again, err := svc.IngestVideo(ctx, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyExists, again.Status)
}
