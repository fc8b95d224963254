package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/omnilearn/omnilearn/internal/ingest"
)

// uploadHandler serves the three ingestion endpoints.
type uploadHandler struct {
	ingest         *ingest.Service
	maxUploadBytes int64
	logger         *slog.Logger
}

// uploadFile handles POST /api/v1/upload/file (multipart, field "file").
func (h *uploadHandler) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "file_too_large", "uploaded file exceeds the size limit", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_upload", `multipart field "file" is required`, h.logger)
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		WriteError(w, http.StatusBadRequest, "invalid_upload", "uploaded file has no name", h.logger)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_upload", "reading uploaded file failed", h.logger)
		return
	}

	result, err := h.ingest.IngestFile(r.Context(), header.Filename, data)
	if err != nil {
		h.writeIngestError(w, err, "filename", header.Filename)
		return
	}

	WriteJSON(w, statusFor(result), result)
}

type urlRequest struct {
	URL string `json:"url"`
}

// uploadURL handles POST /api/v1/upload/url.
func (h *uploadHandler) uploadURL(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeURLRequest(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.ingest.IngestURL(r.Context(), req.URL)
	if err != nil {
		h.writeIngestError(w, err, "url", req.URL)
		return
	}

	WriteJSON(w, statusFor(result), result)
}

// uploadVideo handles POST /api/v1/upload/video.
func (h *uploadHandler) uploadVideo(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeURLRequest(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.ingest.IngestVideo(r.Context(), req.URL)
	if err != nil {
		h.writeIngestError(w, err, "url", req.URL)
		return
	}

	WriteJSON(w, statusFor(result), result)
}

// writeIngestError maps an ingestion failure to a response: 400 with the
// validation message when the submitted source itself is at fault, 500 with
// a generic body otherwise (pipeline errors stay in the logs).
func (h *uploadHandler) writeIngestError(w http.ResponseWriter, err error, attrKey, attrVal string) {
	if errors.Is(err, ingest.ErrInvalidInput) {
		h.logger.Warn("rejected source", attrKey, attrVal, "error", err)
		WriteError(w, http.StatusBadRequest, "invalid_source", err.Error(), h.logger)
		return
	}
	h.logger.Error("ingestion failed", attrKey, attrVal, "error", err)
	WriteError(w, http.StatusInternalServerError, "ingestion_failed", "ingesting the source failed", h.logger)
}

func decodeURLRequest(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (urlRequest, bool) {
	var req urlRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON", logger)
		return req, false
	}
	if strings.TrimSpace(req.URL) == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", `"url" is required`, logger)
		return req, false
	}
	return req, true
}

// statusFor maps an ingestion result to an HTTP status: 201 for new
// sources, 200 when the source already existed.
func statusFor(result *ingest.Result) int {
	if result.Status == ingest.StatusAlreadyExists {
		return http.StatusOK
	}
	return http.StatusCreated
}
