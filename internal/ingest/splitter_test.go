package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitter_ShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(1500, 200)

	chunks, err := s.Split("a short paragraph")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short paragraph", chunks[0])
}

func TestSplitter_LongTextIsSplit(t *testing.T) {
	s := NewSplitter(100, 20)

	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("sentence number content words here. ")
	}

	chunks, err := s.Split(sb.String())
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 120, "chunk should stay near the configured size")
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestSplitter_PreservesParagraphBoundaries(t *testing.T) {
	s := NewSplitter(60, 0)

	text := "First paragraph with some words.\n\nSecond paragraph with other words."
	chunks, err := s.Split(text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "First paragraph")
	assert.Contains(t, chunks[1], "Second paragraph")
}
