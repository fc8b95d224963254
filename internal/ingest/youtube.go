package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// VideoInfo is the metadata fetched for a YouTube video.
type VideoInfo struct {
	URL             string
	VideoID         string
	Title           string
	Channel         string
	DurationSeconds int // 0 when the watch page gives no duration
}

var (
	watchURLRe = regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/)([A-Za-z0-9_-]{6,})`)

	// The watch page embeds player data as JSON; duration appears as
	// "lengthSeconds":"123".
	lengthSecondsRe = regexp.MustCompile(`"lengthSeconds"\s*:\s*"(\d+)"`)
)

// VideoID extracts the video ID from a youtube.com/watch or youtu.be URL.
func VideoID(videoURL string) (string, error) {
	m := watchURLRe.FindStringSubmatch(videoURL)
	if m == nil {
		return "", fmt.Errorf("not a YouTube video URL: %q", videoURL)
	}
	return m[1], nil
}

// YouTubeFetcher fetches video metadata via the public oEmbed endpoint plus
// a watch-page scrape for the duration.
type YouTubeFetcher struct {
	client    *http.Client
	oembedURL string
	watchURL  string
}

// YouTubeOption customizes a YouTubeFetcher.
type YouTubeOption func(*YouTubeFetcher)

// WithYouTubeEndpoints overrides the oEmbed and watch-page base URLs.
// Tests point these at a local server.
func WithYouTubeEndpoints(oembedURL, watchURL string) YouTubeOption {
	return func(f *YouTubeFetcher) {
		f.oembedURL = oembedURL
		f.watchURL = watchURL
	}
}

// NewYouTubeFetcher creates a fetcher with a bounded request timeout.
func NewYouTubeFetcher(opts ...YouTubeOption) *YouTubeFetcher {
	f := &YouTubeFetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		oembedURL: "https://www.youtube.com/oembed",
		watchURL:  "https://www.youtube.com/watch",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the video's title, channel, and duration. The oEmbed call is
// required; the duration scrape is best-effort and leaves DurationSeconds at
// zero on failure.
func (f *YouTubeFetcher) Fetch(ctx context.Context, videoURL string) (*VideoInfo, error) {
	id, err := VideoID(videoURL)
	if err != nil {
		return nil, err
	}

	info := &VideoInfo{URL: videoURL, VideoID: id}

	oembed := f.oembedURL + "?" + url.Values{
		"url":    {"https://www.youtube.com/watch?v=" + id},
		"format": {"json"},
	}.Encode()

	body, err := f.get(ctx, oembed)
	if err != nil {
		return nil, fmt.Errorf("fetching video metadata: %w", err)
	}

	var meta struct {
		Title      string `json:"title"`
		AuthorName string `json:"author_name"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("parsing oEmbed response: %w", err)
	}
	if meta.Title == "" {
		return nil, fmt.Errorf("video %s has no title (unavailable or private)", id)
	}
	info.Title = meta.Title
	info.Channel = meta.AuthorName

	// Duration is not part of oEmbed; scrape it from the watch page.
	if page, err := f.get(ctx, f.watchURL+"?v="+id); err == nil {
		if m := lengthSecondsRe.FindSubmatch(page); m != nil {
			if secs, convErr := strconv.Atoi(string(m[1])); convErr == nil {
				info.DurationSeconds = secs
			}
		}
	}

	return info, nil
}

func (f *YouTubeFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxWebPageBytes))
}

// FormatDuration renders seconds as H:MM:SS or M:SS for display.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "unknown"
	}
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
