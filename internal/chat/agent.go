// Package chat implements retrieve-then-generate question answering over
// the knowledge base, with conversation history and source citations.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/omnilearn/omnilearn/internal/knowledge"
	"github.com/omnilearn/omnilearn/internal/session"
)

const systemPrompt = `You are OmniLearn, a patient and encouraging learning assistant.

Ground your answers in the provided source excerpts. Every claim taken from
an excerpt must carry a citation in exactly this format:
[Source: <source name>, Page: <page>] for documents and web pages, or
[Source: <source name>, Time: <mm:ss>] for videos.

If the excerpts do not cover the question, say so explicitly before drawing
on general knowledge. Keep explanations clear and aimed at a learner.`

const strictAddendum = `

The student asked to stay strictly within the sources. Answer ONLY from the
provided source excerpts and cite each claim. If the excerpts do not contain
the answer, say that the sources do not cover it. Do not use outside
knowledge.`

// degradedAnswer is returned when the model stays unavailable through all
// retries. The request still succeeds so the conversation can continue.
const degradedAnswer = "I'm having trouble reaching the language model right now because of heavy traffic. Please try your question again in a few moments."

// strictPhrases trigger sources-only answering when present in a question.
var strictPhrases = []string{
	"strictly bound",
	"only from the source",
	"only from source",
	"only use the source",
}

// Config holds agent tuning.
type Config struct {
	ModelName         string  // provider-qualified, e.g. "googleai/gemini-2.0-flash"
	Temperature       float32
	TopK              int // chunks retrieved per question
	RequestsPerMinute int // model call pacing; 0 disables
}

// Answer is the result of one question.
type Answer struct {
	Text           string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	SessionKey     string     `json:"session_key"`
	Retrieved      int        `json:"retrieved_chunks"`
	Degraded       bool       `json:"degraded,omitempty"`
	ProcessingTime float64    `json:"processing_time"` // seconds
}

// Agent answers questions by retrieving relevant chunks and prompting the
// model with them. Conversations are tracked per source selection.
type Agent struct {
	g        *genkit.Genkit
	store    *knowledge.Store
	sessions *session.Manager
	cfg      Config
	retry    RetryConfig
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewAgent creates a chat agent.
func NewAgent(g *genkit.Genkit, store *knowledge.Store, sessions *session.Manager, cfg Config, logger *slog.Logger) (*Agent, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Agent{
		g:        g,
		store:    store,
		sessions: sessions,
		cfg:      cfg,
		retry:    DefaultRetryConfig(),
		limiter:  limiter,
		logger:   logger,
	}, nil
}

// Ask answers a question scoped to the given sources (all sources when
// empty). A single selected video source is answered from the video itself;
// everything else goes through retrieval.
func (a *Agent) Ask(ctx context.Context, question string, sourceIDs []uuid.UUID) (*Answer, error) {
	start := time.Now()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	if len(sourceIDs) == 1 {
		src, err := a.store.GetSource(ctx, sourceIDs[0])
		if err != nil {
			return nil, err
		}
		if src.Type == knowledge.SourceTypeVideo {
			return a.askVideo(ctx, question, src, sourceIDs, start)
		}
	}

	chunks, err := a.store.Search(ctx, question, sourceIDs, a.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	system := systemPrompt
	if strictlyBound(question) {
		system += strictAddendum
	}

	// Retrieved video sources are attached as media parts so the model can
	// answer from the video itself, not just its metadata chunk.
	parts := []*ai.Part{ai.NewTextPart(buildContext(chunks) + "\n\nQuestion: " + question)}
	for _, url := range videoURLs(chunks) {
		parts = append(parts, ai.NewMediaPart("video/*", url))
	}

	messages := a.historyMessages(sourceIDs)
	messages = append(messages, ai.NewUserMessage(parts...))

	resp, err := a.generateWithRetry(ctx, func(ctx context.Context) (*ai.ModelResponse, error) {
		return genkit.Generate(ctx, a.g,
			ai.WithModelName(a.cfg.ModelName),
			ai.WithSystem(system),
			ai.WithMessages(messages...),
			ai.WithConfig(&genai.GenerateContentConfig{
				Temperature: genai.Ptr(a.cfg.Temperature),
			}),
		)
	})

	return a.finish(question, sourceIDs, resp, err, len(chunks), start)
}

// askVideo answers from the video itself via the model's media understanding
// instead of text retrieval.
func (a *Agent) askVideo(ctx context.Context, question string, src *knowledge.Source, sourceIDs []uuid.UUID, start time.Time) (*Answer, error) {
	chunks, err := a.store.ChunksBySource(ctx, src.ID)
	if err != nil {
		return nil, fmt.Errorf("loading video source: %w", err)
	}

	videoURL, _ := chunks[0].Metadata["url"].(string)
	if videoURL == "" {
		return nil, fmt.Errorf("video source %s has no URL", src.ID)
	}

	prompt := fmt.Sprintf(
		"Answer the question about the video %q. Cite moments you reference as [Source: %s, Time: <mm:ss>].\n\nQuestion: %s",
		src.Name, src.Name, question)

	messages := a.historyMessages(sourceIDs)
	messages = append(messages, ai.NewUserMessage(
		ai.NewTextPart(prompt),
		ai.NewMediaPart("video/*", videoURL),
	))

	resp, err := a.generateWithRetry(ctx, func(ctx context.Context) (*ai.ModelResponse, error) {
		return genkit.Generate(ctx, a.g,
			ai.WithModelName(a.cfg.ModelName),
			ai.WithSystem(systemPrompt),
			ai.WithMessages(messages...),
			ai.WithConfig(&genai.GenerateContentConfig{
				Temperature: genai.Ptr(a.cfg.Temperature),
			}),
		)
	})

	return a.finish(question, sourceIDs, resp, err, len(chunks), start)
}

// finish turns a model response (or retry exhaustion) into an Answer and
// records the turn in the session.
func (a *Agent) finish(question string, sourceIDs []uuid.UUID, resp *ai.ModelResponse, err error, retrieved int, start time.Time) (*Answer, error) {
	var text string
	degraded := false

	switch {
	case err == nil:
		text = resp.Text()
	default:
		var exhausted *errRetriesExhausted
		if !errors.As(err, &exhausted) {
			return nil, err
		}
		a.logger.Error("model unavailable, returning degraded answer", "error", err)
		text = degradedAnswer
		degraded = true
	}

	a.sessions.Append(sourceIDs, session.RoleUser, question)
	key := a.sessions.Append(sourceIDs, session.RoleAssistant, text)

	return &Answer{
		Text:           text,
		Citations:      ExtractCitations(text),
		SessionKey:     key,
		Retrieved:      retrieved,
		Degraded:       degraded,
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

// historyMessages converts stored session history into model messages.
func (a *Agent) historyMessages(sourceIDs []uuid.UUID) []*ai.Message {
	history := a.sessions.History(sourceIDs)
	messages := make([]*ai.Message, 0, len(history)+1)
	for _, msg := range history {
		switch msg.Role {
		case session.RoleAssistant:
			messages = append(messages, ai.NewModelTextMessage(msg.Content))
		default:
			messages = append(messages, ai.NewUserTextMessage(msg.Content))
		}
	}
	return messages
}

// strictlyBound reports whether the question asks for sources-only answers.
func strictlyBound(question string) bool {
	lower := strings.ToLower(question)
	for _, phrase := range strictPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// buildContext renders retrieved chunks as a citable excerpt block.
func buildContext(chunks []*knowledge.Chunk) string {
	if len(chunks) == 0 {
		return "No source excerpts are available for this question."
	}

	var sb strings.Builder
	sb.WriteString("Source excerpts:\n\n")
	for _, c := range chunks {
		// Video chunks carry no page; their citations use timestamps.
		if c.SourceType == knowledge.SourceTypeVideo {
			fmt.Fprintf(&sb, "[Source: %s, Time: see video]\n%s\n\n", c.SourceName, c.Content)
			continue
		}
		page := 1
		if p, ok := c.Metadata["page"].(float64); ok {
			page = int(p)
		}
		fmt.Fprintf(&sb, "[Source: %s, Page: %d]\n%s\n\n", c.SourceName, page, c.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// videoURLs returns the distinct video URLs among retrieved chunks, in
// retrieval order, so the model can watch what retrieval surfaced.
func videoURLs(chunks []*knowledge.Chunk) []string {
	var urls []string
	seen := map[string]bool{}
	for _, c := range chunks {
		if c.SourceType != knowledge.SourceTypeVideo {
			continue
		}
		url, _ := c.Metadata["url"].(string)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		urls = append(urls, url)
	}
	return urls
}
