package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnilearn/omnilearn/internal/api"
	"github.com/omnilearn/omnilearn/internal/chat"
	"github.com/omnilearn/omnilearn/internal/ingest"
	"github.com/omnilearn/omnilearn/internal/knowledge"
	"github.com/omnilearn/omnilearn/internal/log"
	"github.com/omnilearn/omnilearn/internal/session"
	"github.com/omnilearn/omnilearn/internal/testutil"
)

type fixture struct {
	handler  http.Handler
	model    *testutil.MockModel
	embedder *testutil.MockEmbedder
	store    *knowledge.Store
	sessions *session.Manager
}

// fakeYouTubeServer serves oEmbed metadata and a watch page.
func fakeYouTubeServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oembed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Algebra Lecture","author_name":"Math Channel"}`))
	})
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"lengthSeconds":"600"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupServer(t *testing.T) *fixture {
	t.Helper()

	pool := testutil.SetupTestDB(t)
	g := testutil.NewGenkit(t)

	mockEmbedder := testutil.NewMockEmbedder(knowledge.VectorDimension)
	embedder := mockEmbedder.Register(g)
	model := testutil.NewMockModel("mock answer")
	model.Register(g)

	store, err := knowledge.NewStore(pool, embedder, log.NewNop())
	require.NoError(t, err)

	yt := fakeYouTubeServer(t)
	svc, err := ingest.NewService(store, ingest.NewSplitter(1500, 200), ingest.NewWebFetcher(),
		ingest.NewYouTubeFetcher(ingest.WithYouTubeEndpoints(yt.URL+"/oembed", yt.URL+"/watch")),
		log.NewNop())
	require.NoError(t, err)

	sessions := session.NewManager(log.NewNop())
	agent, err := chat.NewAgent(g, store, sessions, chat.Config{
		ModelName: "mock/test-model",
		TopK:      10,
	}, log.NewNop())
	require.NoError(t, err)

	srv, err := api.NewServer(api.ServerConfig{
		Logger:   log.NewNop(),
		Ingest:   svc,
		Agent:    agent,
		Store:    store,
		Sessions: sessions,
		Pool:     pool,
	})
	require.NoError(t, err)

	return &fixture{handler: srv.Handler(), model: model, embedder: mockEmbedder, store: store, sessions: sessions}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) uploadFile(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestServer_Health(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestServer_Ready(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeBody(t, rec)["status"])
}

func TestServer_Root(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "omnilearn", decodeBody(t, rec)["service"])
}

func TestServer_UploadFile(t *testing.T) {
	f := setupServer(t)

	rec := f.uploadFile(t, "notes.txt", "mitochondria are the powerhouse of the cell")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, "notes.txt", body["source_name"])
	assert.Equal(t, float64(1), body["chunk_count"])
}

func TestServer_UploadFile_Duplicate(t *testing.T) {
	f := setupServer(t)

	first := f.uploadFile(t, "dup.txt", "content")
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.uploadFile(t, "dup.txt", "other content")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "already_exists", decodeBody(t, second)["status"])
}

func TestServer_UploadFile_UnsupportedFormat(t *testing.T) {
	f := setupServer(t)

	rec := f.uploadFile(t, "image.png", "binary")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_source")
}

func TestServer_UploadFile_PipelineError(t *testing.T) {
	f := setupServer(t)
	f.embedder.FailNext(1, "embedding backend unavailable")

	rec := f.uploadFile(t, "notes.txt", "some perfectly valid content")
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())

	// The response stays generic; the backend error goes to the logs only.
	detail, ok := decodeBody(t, rec)["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ingestion_failed", detail["code"])
	assert.NotContains(t, rec.Body.String(), "embedding backend unavailable")
}

func TestServer_UploadFile_MissingField(t *testing.T) {
	f := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload/file", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_UploadURL(t *testing.T) {
	f := setupServer(t)

	pages := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, `<html><head><title>Cell Biology</title></head><body><article><h1>Cell Biology</h1>`,
			`<p>The cell is the basic structural and functional unit of all known organisms. `,
			`Cells consist of cytoplasm enclosed within a membrane and carry genetic material. `,
			`Most plant and animal cells are only visible under a microscope, with dimensions `,
			`between one and one hundred micrometres.</p>`,
			`<p>Cells are broadly categorized into two types: eukaryotic cells, which contain a `,
			`nucleus, and prokaryotic cells, which do not. Prokaryotes are single-celled organisms, `,
			`while eukaryotes can be either single-celled or multicellular. The study of cells and `,
			`how they work has led to many other studies in related areas of biology.</p>`,
			`</article></body></html>`)
	}))
	defer pages.Close()

	rec := f.do(t, http.MethodPost, "/api/v1/upload/url", map[string]string{"url": pages.URL})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, "web_page", body["source_type"])
}

func TestServer_UploadURL_MissingURL(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/v1/upload/url", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_UploadVideo(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/v1/upload/video",
		map[string]string{"url": "https://www.youtube.com/watch?v=abcdef12345"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "Algebra Lecture", body["source_name"])
	assert.Equal(t, "video", body["source_type"])
}

func TestServer_Chat(t *testing.T) {
	f := setupServer(t)
	f.uploadFile(t, "bio.txt", "photosynthesis converts light into chemical energy")
	f.model.AddResponse("photosynthesis", "Light becomes chemical energy [Source: bio.txt, Page: 1].")

	rec := f.do(t, http.MethodPost, "/api/v1/chat", map[string]any{"query": "explain photosynthesis"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Contains(t, body["answer"], "chemical energy")
	assert.Equal(t, "all_sources", body["session_key"])

	citations, ok := body["citations"].([]any)
	require.True(t, ok)
	require.Len(t, citations, 1)
}

func TestServer_Chat_MissingQuery(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/v1/chat", map[string]any{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Chat_InvalidSourceID(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/v1/chat",
		map[string]any{"query": "q", "source_ids": []string{"not-a-uuid"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ChatHistory(t *testing.T) {
	f := setupServer(t)
	f.uploadFile(t, "bio.txt", "content")

	rec := f.do(t, http.MethodPost, "/api/v1/chat", map[string]any{"query": "first question"})
	require.Equal(t, http.StatusOK, rec.Code)

	hist := f.do(t, http.MethodPost, "/api/v1/chat/history", map[string]any{})
	require.Equal(t, http.StatusOK, hist.Code)

	body := decodeBody(t, hist)
	assert.Equal(t, "all_sources", body["session_key"])
	assert.Equal(t, float64(2), body["message_count"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestServer_Sources_ListGetDelete(t *testing.T) {
	f := setupServer(t)

	created := decodeBody(t, f.uploadFile(t, "a.txt", "alpha"))
	sourceID := created["source_id"].(string)

	list := f.do(t, http.MethodGet, "/api/v1/sources", nil)
	require.Equal(t, http.StatusOK, list.Code)
	sources := decodeBody(t, list)["sources"].([]any)
	require.Len(t, sources, 1)

	get := f.do(t, http.MethodGet, "/api/v1/sources/"+sourceID, nil)
	require.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "a.txt", decodeBody(t, get)["name"])

	del := f.do(t, http.MethodDelete, "/api/v1/sources/"+sourceID, nil)
	require.Equal(t, http.StatusOK, del.Code)
	assert.Equal(t, float64(1), decodeBody(t, del)["deleted_chunks"])

	missing := f.do(t, http.MethodGet, "/api/v1/sources/"+sourceID, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestServer_Sources_DeleteInvalidatesSessions(t *testing.T) {
	f := setupServer(t)

	created := decodeBody(t, f.uploadFile(t, "a.txt", "alpha"))
	sourceID := created["source_id"].(string)

	// Build history scoped to all sources.
	rec := f.do(t, http.MethodPost, "/api/v1/chat", map[string]any{"query": "q"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.sessions.History(nil), 2)

	del := f.do(t, http.MethodDelete, "/api/v1/sources/"+sourceID, nil)
	require.Equal(t, http.StatusOK, del.Code)

	assert.Empty(t, f.sessions.History(nil))
}

func TestServer_Sources_BadID(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/api/v1/sources/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	g := testutil.NewGenkit(t)
	embedder := testutil.NewMockEmbedder(knowledge.VectorDimension).Register(g)
	testutil.NewMockModel("ok").Register(g)

	store, err := knowledge.NewStore(pool, embedder, log.NewNop())
	require.NoError(t, err)
	svc, err := ingest.NewService(store, ingest.NewSplitter(1500, 200), nil, nil, log.NewNop())
	require.NoError(t, err)
	sessions := session.NewManager(log.NewNop())
	agent, err := chat.NewAgent(g, store, sessions, chat.Config{ModelName: "mock/test-model"}, log.NewNop())
	require.NoError(t, err)

	srv, err := api.NewServer(api.ServerConfig{
		Ingest:      svc,
		Agent:       agent,
		Store:       store,
		Sessions:    sessions,
		Logger:      log.NewNop(),
		CORSOrigins: []string{"http://localhost:8501"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "http://localhost:8501")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:8501", rec.Header().Get("Access-Control-Allow-Origin"))

	// Unknown origins get no CORS headers.
	req = httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RequestIDHeader(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/api/v1/sources", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_RateLimit(t *testing.T) {
	f := setupServer(t)

	// Default burst is 60; exhaust it from one IP.
	var lastCode int
	for i := 0; i < 70; i++ {
		rec := f.do(t, http.MethodGet, "/api/v1/sources", nil)
		lastCode = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}
