package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/omnilearn/omnilearn/internal/chat"
	"github.com/omnilearn/omnilearn/internal/knowledge"
	"github.com/omnilearn/omnilearn/internal/session"
)

// chatHandler serves question answering and history retrieval.
type chatHandler struct {
	agent    *chat.Agent
	sessions *session.Manager
	logger   *slog.Logger
}

type chatRequest struct {
	Query     string   `json:"query"`
	SourceIDs []string `json:"source_ids"`
}

// send handles POST /api/v1/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON", h.logger)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", `"query" is required`, h.logger)
		return
	}

	sourceIDs, err := parseSourceIDs(req.SourceIDs)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	answer, err := h.agent.Ask(r.Context(), req.Query, sourceIDs)
	if err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "source_not_found", "one of the selected sources does not exist", h.logger)
			return
		}
		h.logger.Error("chat failed", "error", err, "request_id", requestIDFromContext(r.Context()))
		WriteError(w, http.StatusInternalServerError, "chat_failed", "answering the question failed", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, answer)
}

type historyRequest struct {
	SourceIDs []string `json:"source_ids"`
}

// history handles POST /api/v1/chat/history. The body selects the session
// by source IDs; an empty selection is the all-sources session.
func (h *chatHandler) history(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON", h.logger)
		return
	}

	sourceIDs, err := parseSourceIDs(req.SourceIDs)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	messages := h.sessions.History(sourceIDs)
	WriteJSON(w, http.StatusOK, map[string]any{
		"session_key":   session.Key(sourceIDs),
		"messages":      messages,
		"message_count": len(messages),
	})
}

// parseSourceIDs converts string IDs to UUIDs, rejecting malformed values.
func parseSourceIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, errors.New("source_ids must be valid UUIDs")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
