// Package api exposes the JSON HTTP surface: ingestion, chat, source
// management, and health probes.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnilearn/omnilearn/internal/chat"
	"github.com/omnilearn/omnilearn/internal/ingest"
	"github.com/omnilearn/omnilearn/internal/knowledge"
	"github.com/omnilearn/omnilearn/internal/session"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger         *slog.Logger
	Ingest         *ingest.Service   // Required
	Agent          *chat.Agent       // Required
	Store          *knowledge.Store  // Required
	Sessions       *session.Manager  // Required
	Pool           *pgxpool.Pool     // Optional: nil disables DB checks in /ready
	CORSOrigins    []string          // Allowed origins for CORS
	TrustProxy     bool              // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst      int               // Rate limiter burst size per IP (0 = default 60)
	MaxUploadBytes int64             // File upload cap (0 = 32 MiB)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Ingest == nil {
		return nil, errors.New("ingest service is required")
	}
	if cfg.Agent == nil {
		return nil, errors.New("chat agent is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}

	uh := &uploadHandler{ingest: cfg.Ingest, maxUploadBytes: maxUpload, logger: logger}
	ch := &chatHandler{agent: cfg.Agent, sessions: cfg.Sessions, logger: logger}
	sh := &sourcesHandler{store: cfg.Store, sessions: cfg.Sessions, logger: logger}

	mux := http.NewServeMux()

	// Ingestion
	mux.HandleFunc("POST /api/v1/upload/file", uh.uploadFile)
	mux.HandleFunc("POST /api/v1/upload/url", uh.uploadURL)
	mux.HandleFunc("POST /api/v1/upload/video", uh.uploadVideo)

	// Chat
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("POST /api/v1/chat/history", ch.history)

	// Sources
	mux.HandleFunc("GET /api/v1/sources", sh.list)
	mux.HandleFunc("GET /api/v1/sources/{id}", sh.get)
	mux.HandleFunc("DELETE /api/v1/sources/{id}", sh.delete)

	// Service info
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"service": "omnilearn",
			"tagline": "learning assistant over your own sources",
			"status":  "running",
		})
	})

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID sits before Logging so request_id is available in log
	// attributes; CORS sits before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
