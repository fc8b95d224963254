package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnilearn/omnilearn/db"
	"github.com/omnilearn/omnilearn/internal/api"
	"github.com/omnilearn/omnilearn/internal/chat"
	"github.com/omnilearn/omnilearn/internal/config"
	"github.com/omnilearn/omnilearn/internal/ingest"
	"github.com/omnilearn/omnilearn/internal/knowledge"
	"github.com/omnilearn/omnilearn/internal/log"
	"github.com/omnilearn/omnilearn/internal/observability"
	"github.com/omnilearn/omnilearn/internal/session"
)

// Setup creates and initializes the application. On failure everything
// already initialized is released; on success call Close.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}

	a := &App{
		Config: cfg,
		Logger: log.New(log.Config{
			Level: log.ParseLevel(cfg.LogLevel),
			JSON:  cfg.LogJSON,
		}),
	}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				a.Logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing registers with Genkit's TracerProvider, so it must be wired
	// before genkit.Init.
	a.otelShutdown = observability.Setup(ctx, cfg.Tracing, a.Logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	a.Genkit = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if a.Genkit == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}

	a.Embedder = googlegenai.GoogleAIEmbedder(a.Genkit, cfg.EmbedderModel)
	if a.Embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	a.Knowledge, err = knowledge.NewStore(pool, a.Embedder, a.Logger)
	if err != nil {
		return nil, err
	}

	a.Ingest, err = ingest.NewService(
		a.Knowledge,
		ingest.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		ingest.NewWebFetcher(),
		ingest.NewYouTubeFetcher(),
		a.Logger,
	)
	if err != nil {
		return nil, err
	}

	a.Sessions = session.NewManager(a.Logger)

	a.Agent, err = chat.NewAgent(a.Genkit, a.Knowledge, a.Sessions, chat.Config{
		ModelName:         cfg.ModelName,
		Temperature:       cfg.Temperature,
		TopK:              cfg.RetrievalTopK,
		RequestsPerMinute: cfg.ModelRPM,
	}, a.Logger)
	if err != nil {
		return nil, err
	}

	a.Server, err = api.NewServer(api.ServerConfig{
		Logger:         a.Logger,
		Ingest:         a.Ingest,
		Agent:          a.Agent,
		Store:          a.Knowledge,
		Sessions:       a.Sessions,
		Pool:           pool,
		CORSOrigins:    cfg.CORSOrigins,
		TrustProxy:     cfg.TrustProxy,
		RateBurst:      cfg.RateBurst,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
