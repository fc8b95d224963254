package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/omnilearn/omnilearn/internal/knowledge"
	"github.com/omnilearn/omnilearn/internal/session"
)

// sourcesHandler serves source listing, inspection, and deletion.
type sourcesHandler struct {
	store    *knowledge.Store
	sessions *session.Manager
	logger   *slog.Logger
}

// list handles GET /api/v1/sources.
func (h *sourcesHandler) list(w http.ResponseWriter, r *http.Request) {
	sources, err := h.store.ListSources(r.Context())
	if err != nil {
		h.logger.Error("listing sources failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "list_failed", "listing sources failed", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"sources":     sources,
		"total_count": len(sources),
	})
}

// get handles GET /api/v1/sources/{id}.
func (h *sourcesHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := sourceIDFromPath(w, r, h.logger)
	if !ok {
		return
	}

	source, err := h.store.GetSource(r.Context(), id)
	if err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "source_not_found", "source does not exist", h.logger)
			return
		}
		h.logger.Error("getting source failed", "source_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "get_failed", "getting source failed", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, source)
}

// delete handles DELETE /api/v1/sources/{id}. Sessions scoped to the
// deleted source are invalidated so later questions cannot cite it.
func (h *sourcesHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := sourceIDFromPath(w, r, h.logger)
	if !ok {
		return
	}

	deleted, err := h.store.DeleteSource(r.Context(), id)
	if err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "source_not_found", "source does not exist", h.logger)
			return
		}
		h.logger.Error("deleting source failed", "source_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "delete_failed", "deleting source failed", h.logger)
		return
	}

	invalidated := h.sessions.InvalidateSource(id)

	WriteJSON(w, http.StatusOK, map[string]any{
		"deleted_chunks":       deleted,
		"invalidated_sessions": invalidated,
	})
}

func sourceIDFromPath(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "source id must be a UUID", logger)
		return uuid.Nil, false
	}
	return id, true
}
