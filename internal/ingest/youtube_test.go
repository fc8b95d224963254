package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"watch URL", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"watch URL with extra params", "https://www.youtube.com/watch?list=PL123&v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"short URL", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"not youtube", "https://vimeo.com/12345", "", true},
		{"plain text", "hello", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := VideoID(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

// fakeYouTube serves oEmbed metadata and a watch page with embedded duration.
func fakeYouTube(t *testing.T) *YouTubeFetcher {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oembed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Learning Go","author_name":"Go Channel"}`))
	})
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>var data = {"lengthSeconds":"754","other":true};</html>`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewYouTubeFetcher(WithYouTubeEndpoints(srv.URL+"/oembed", srv.URL+"/watch"))
}

func TestYouTubeFetcher_Fetch(t *testing.T) {
	f := fakeYouTube(t)

	info, err := f.Fetch(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, "dQw4w9WgXcQ", info.VideoID)
	assert.Equal(t, "Learning Go", info.Title)
	assert.Equal(t, "Go Channel", info.Channel)
	assert.Equal(t, 754, info.DurationSeconds)
}

func TestYouTubeFetcher_Fetch_OEmbedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewYouTubeFetcher(WithYouTubeEndpoints(srv.URL+"/oembed", srv.URL+"/watch"))

	_, err := f.Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "unknown", FormatDuration(0))
	assert.Equal(t, "0:45", FormatDuration(45))
	assert.Equal(t, "12:34", FormatDuration(754))
	assert.Equal(t, "1:02:03", FormatDuration(3723))
}
