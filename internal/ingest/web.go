package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	// maxWebPageBytes caps how much of a page is downloaded.
	maxWebPageBytes = 10 << 20

	webFetchTimeout = 30 * time.Second

	// Some sites refuse requests without a browser-looking agent.
	webUserAgent = "Mozilla/5.0 (compatible; OmniLearn/1.0)"
)

// WebPage is the readable content extracted from a URL.
type WebPage struct {
	URL   string
	Title string
	Text  string
}

// WebFetcher downloads pages and extracts their main readable content.
type WebFetcher struct {
	client *http.Client
}

// NewWebFetcher creates a fetcher with a bounded request timeout.
func NewWebFetcher() *WebFetcher {
	return &WebFetcher{
		client: &http.Client{Timeout: webFetchTimeout},
	}
}

// Fetch downloads the page and extracts its readable text and title.
// Title resolution order: extracted article title, the HTML <title>
// element, then the host name.
func (f *WebFetcher) Fetch(ctx context.Context, pageURL string) (*WebPage, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL: %q", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebPageBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pageURL, err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return nil, fmt.Errorf("extracting content from %s: %w", pageURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil, fmt.Errorf("no readable content at %s", pageURL)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = htmlTitle(body)
	}
	if title == "" {
		title = parsed.Host
	}

	return &WebPage{URL: pageURL, Title: title, Text: text}, nil
}

// htmlTitle returns the document's <title> text, or "".
func htmlTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
