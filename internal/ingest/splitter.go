package ingest

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter breaks extracted text into overlapping chunks sized for
// embedding and retrieval.
type Splitter struct {
	inner textsplitter.RecursiveCharacter
}

// NewSplitter creates a recursive character splitter. It prefers paragraph
// and sentence boundaries and only falls back to hard cuts for oversized
// runs of text.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	return &Splitter{
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Split returns the non-empty chunks of text.
func (s *Splitter) Split(text string) ([]string, error) {
	parts, err := s.inner.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}

	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, p)
	}
	return chunks, nil
}
