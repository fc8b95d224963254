package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockModel provides deterministic model responses for testing.
// It matches user message content against registered patterns and returns
// the corresponding response; unmatched messages get the fallback.
//
// FailNext injects transient errors, which is how retry behavior is tested.
//
// Thread-safe for concurrent use.
type MockModel struct {
	mu           sync.Mutex
	rules        []mockRule
	fallback     string
	failuresLeft int
	failMessage  string
	calls        []MockCall
}

type mockRule struct {
	pattern  string // substring match in user message, lowercased
	response string
}

// MockCall records a single call to the mock model.
type MockCall struct {
	System      string   // system prompt text
	UserMessage string   // last user message text
	MediaURLs   []string // media part URLs in the last user message
	Response    string   // response text returned
}

// NewMockModel creates a mock model with the given fallback response.
func NewMockModel(fallback string) *MockModel {
	return &MockModel{fallback: fallback}
}

// AddResponse registers a pattern-response pair. When a user message
// contains the pattern (case-insensitive), the response is returned.
// Patterns are checked in registration order; first match wins.
func (m *MockModel) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// FailNext makes the next n calls return an error with the given message,
// e.g. "429 resource exhausted" to simulate provider rate limiting.
func (m *MockModel) FailNext(n int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failuresLeft = n
	m.failMessage = message
}

// Calls returns a copy of all recorded successful calls.
func (m *MockModel) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Reset clears recorded calls and pending failures (keeps registered rules).
func (m *MockModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.failuresLeft = 0
}

// Register registers the mock as a Genkit model named "mock/test-model".
func (m *MockModel) Register(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
			Media:      true,
		},
	}, m.generate)
}

func (m *MockModel) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText, systemText string
	var mediaURLs []string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			for _, p := range req.Messages[i].Content {
				if p.Kind == ai.PartMedia {
					mediaURLs = append(mediaURLs, p.Text)
				}
			}
			break
		}
	}
	for _, msg := range req.Messages {
		if msg.Role == ai.RoleSystem {
			systemText = msg.Text()
			break
		}
	}

	m.mu.Lock()
	if m.failuresLeft > 0 {
		m.failuresLeft--
		msg := m.failMessage
		m.mu.Unlock()
		return nil, errors.New(msg)
	}

	responseText := m.fallback
	lower := strings.ToLower(userText)
	for i := range m.rules {
		if strings.Contains(lower, m.rules[i].pattern) {
			responseText = m.rules[i].response
			break
		}
	}

	m.calls = append(m.calls, MockCall{
		System:      systemText,
		UserMessage: userText,
		MediaURLs:   mediaURLs,
		Response:    responseText,
	})
	m.mu.Unlock()

	if cb != nil {
		_ = cb(ctx, &ai.ModelResponseChunk{
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		})
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		},
	}, nil
}
