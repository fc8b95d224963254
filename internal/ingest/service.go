package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/omnilearn/omnilearn/internal/knowledge"
)

// Status values for ingestion results.
const (
	StatusCreated       = "created"
	StatusAlreadyExists = "already_exists"
)

// ErrInvalidInput marks ingestion failures caused by the submitted source
// itself (unsupported format, unreadable content, bad URL) as opposed to
// pipeline failures like embedding or storage errors. Handlers map it to a
// client error.
var ErrInvalidInput = errors.New("invalid source input")

// Result describes the outcome of one ingestion.
type Result struct {
	Status     string    `json:"status"`
	SourceID   uuid.UUID `json:"source_id"`
	SourceName string    `json:"source_name"`
	SourceType string    `json:"source_type"`
	ChunkCount int       `json:"chunk_count"`
}

// Service ingests documents, web pages, and videos into the knowledge base.
// Sources are deduplicated by name: re-ingesting an existing name returns
// the existing source untouched.
type Service struct {
	store    *knowledge.Store
	splitter *Splitter
	web      *WebFetcher
	youtube  *YouTubeFetcher
	logger   *slog.Logger
}

// NewService creates an ingestion service.
func NewService(store *knowledge.Store, splitter *Splitter, web *WebFetcher, youtube *YouTubeFetcher, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if splitter == nil {
		return nil, fmt.Errorf("splitter is required")
	}
	if web == nil {
		web = NewWebFetcher()
	}
	if youtube == nil {
		youtube = NewYouTubeFetcher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, splitter: splitter, web: web, youtube: youtube, logger: logger}, nil
}

// IngestFile extracts, chunks, embeds, and stores an uploaded file.
// The filename is the source name and the dedupe key.
func (s *Service) IngestFile(ctx context.Context, filename string, data []byte) (*Result, error) {
	if existing, found, err := s.dedupe(ctx, filename, knowledge.SourceTypeDocument); err != nil {
		return nil, err
	} else if found {
		return existing, nil
	}

	sections, err := ExtractDocument(filename, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var inputs []knowledge.ChunkInput
	for _, section := range sections {
		parts, err := s.splitter.Split(section.Text)
		if err != nil {
			return nil, err
		}
		for _, part := range parts {
			inputs = append(inputs, knowledge.ChunkInput{
				Content:  part,
				Metadata: map[string]any{"page": section.Page},
			})
		}
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no content to ingest in %q", ErrInvalidInput, filename)
	}

	return s.storeChunks(ctx, filename, knowledge.SourceTypeDocument, inputs)
}

// IngestURL fetches a web page, extracts its readable content, and stores
// it. The page title is the source name and the dedupe key.
func (s *Service) IngestURL(ctx context.Context, pageURL string) (*Result, error) {
	page, err := s.web.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if existing, found, err := s.dedupe(ctx, page.Title, knowledge.SourceTypeWebPage); err != nil {
		return nil, err
	} else if found {
		return existing, nil
	}

	parts, err := s.splitter.Split(page.Text)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no content to ingest at %q", ErrInvalidInput, pageURL)
	}

	inputs := make([]knowledge.ChunkInput, len(parts))
	for i, part := range parts {
		inputs[i] = knowledge.ChunkInput{
			Content:  part,
			Metadata: map[string]any{"page": i + 1, "url": page.URL},
		}
	}

	return s.storeChunks(ctx, page.Title, knowledge.SourceTypeWebPage, inputs)
}

// IngestVideo registers a YouTube video. Video content is not transcribed:
// a single metadata chunk anchors the source, and question answering passes
// the video to the model directly.
func (s *Service) IngestVideo(ctx context.Context, videoURL string) (*Result, error) {
	info, err := s.youtube.Fetch(ctx, videoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if existing, found, err := s.dedupe(ctx, info.Title, knowledge.SourceTypeVideo); err != nil {
		return nil, err
	} else if found {
		return existing, nil
	}

	content := fmt.Sprintf("YouTube video: %s\nTitle: %s\nChannel: %s\nDuration: %s",
		info.URL, info.Title, info.Channel, FormatDuration(info.DurationSeconds))

	inputs := []knowledge.ChunkInput{{
		Content: content,
		Metadata: map[string]any{
			"url":              info.URL,
			"video_id":         info.VideoID,
			"channel":          info.Channel,
			"duration_seconds": info.DurationSeconds,
		},
	}}

	return s.storeChunks(ctx, info.Title, knowledge.SourceTypeVideo, inputs)
}

// dedupe returns the existing source when the name is already ingested
// under the same type.
func (s *Service) dedupe(ctx context.Context, name string, typ knowledge.SourceType) (*Result, bool, error) {
	exists, id, err := s.store.SourceExists(ctx, name, typ)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}

	s.logger.Info("source already ingested, skipping", "source_name", name, "source_id", id)
	return &Result{
		Status:     StatusAlreadyExists,
		SourceID:   id,
		SourceName: name,
		SourceType: string(typ),
	}, true, nil
}

func (s *Service) storeChunks(ctx context.Context, name string, typ knowledge.SourceType, inputs []knowledge.ChunkInput) (*Result, error) {
	sourceID := uuid.New()
	count, err := s.store.AddChunks(ctx, sourceID, name, typ, inputs)
	if err != nil {
		return nil, fmt.Errorf("storing %q: %w", name, err)
	}

	s.logger.Info("ingested source",
		"source_id", sourceID, "source_name", name, "source_type", typ, "chunks", count)
	return &Result{
		Status:     StatusCreated,
		SourceID:   sourceID,
		SourceName: name,
		SourceType: string(typ),
		ChunkCount: count,
	}, nil
}
