// Package app assembles the application: configuration, database pool,
// Genkit with the Gemini provider, knowledge store, ingestion service,
// chat agent, sessions, and the HTTP API server.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnilearn/omnilearn/internal/api"
	"github.com/omnilearn/omnilearn/internal/chat"
	"github.com/omnilearn/omnilearn/internal/config"
	"github.com/omnilearn/omnilearn/internal/ingest"
	"github.com/omnilearn/omnilearn/internal/knowledge"
	"github.com/omnilearn/omnilearn/internal/session"
)

// App is the initialized application container. Create with Setup; release
// resources with Close.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	Knowledge *knowledge.Store
	Ingest    *ingest.Service
	Agent     *chat.Agent
	Sessions  *session.Manager
	Server    *api.Server

	otelShutdown func(context.Context) error
}

// Close releases all resources: flushes pending trace spans and closes the
// database pool. Safe to call on a partially initialized App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil && a.Logger != nil {
			a.Logger.Warn("shutting down tracer provider", "error", err)
		}
		cancel()
	}

	if a.Pool != nil {
		a.Pool.Close()
	}

	return nil
}
