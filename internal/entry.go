// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/voxnote/internal/api"
	"github.com/starford/voxnote/internal/docstore"
	"github.com/starford/voxnote/internal/docstore/memstore"
	"github.com/starford/voxnote/internal/docstore/neo4jstore"
	"github.com/starford/voxnote/internal/docstore/sqlitestore"
	"github.com/starford/voxnote/internal/docstore/vault"
	"github.com/starford/voxnote/internal/genai"
	"github.com/starford/voxnote/internal/identity"
	"github.com/starford/voxnote/internal/mcpserver"
	"github.com/starford/voxnote/internal/speech"
	"github.com/starford/voxnote/internal/sse"
	"github.com/starford/voxnote/internal/workspace"
)

// components is everything Run and RunMCP share.
type components struct {
	cfg        *Config
	logger     *slog.Logger
	store      docstore.DocumentStore
	vault      *vault.Vault
	titler     *genai.TitleGenerator
	translator *genai.Translator
	recognizer speech.Recognizer
}

func setup(ctx context.Context, opts []Option) (*components, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.Bool("genai_enabled", cfg.GenAI.APIKey != ""),
		slog.Bool("speech_enabled", cfg.Speech.Socket != ""),
		slog.String("log_level", cfg.App.LogLevel.String()))

	rt := &components{cfg: cfg, logger: logger}

	store, v, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	rt.store, rt.vault = store, v

	client := genai.NewClient(genai.Config{
		APIKey:            cfg.GenAI.APIKey,
		Model:             cfg.GenAI.Model,
		APIURL:            cfg.GenAI.URL,
		RequestsPerMinute: cfg.GenAI.RequestsPerMinute,
	})
	rt.titler = genai.NewTitleGenerator(client)
	rt.translator = genai.NewTranslator(client)
	if !client.Available() {
		logger.Warn("genai: no api key, title generation and translation disabled")
	}

	if cfg.Speech.Socket != "" {
		rt.recognizer = &speech.DaemonRecognizer{
			SocketPath: cfg.Speech.Socket,
			Locale:     cfg.Speech.Locale,
			Drain:      cfg.Speech.Drain,
			Logger:     logger,
		}
	}

	return rt, nil
}

func openStore(ctx context.Context, cfg StoreConfig, logger *slog.Logger) (docstore.DocumentStore, *vault.Vault, error) {
	switch cfg.Driver {
	case StoreDriverVault:
		v, err := vault.Open(cfg.Vault.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init vault store: %w", err)
		}
		return v, v, nil
	case StoreDriverNeo4j:
		s, err := neo4jstore.Open(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init neo4j store: %w", err)
		}
		return s, nil, nil
	case StoreDriverMemory:
		logger.Warn("memory store: notes are lost on exit")
		return memstore.New(), nil, nil
	default:
		db, err := sqlitestore.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return db, nil, nil
	}
}

func (rt *components) provider() identity.Provider {
	auth := rt.cfg.Auth
	switch auth.Mode {
	case AuthModeToken:
		table := make(map[string]identity.Identity, len(auth.Tokens))
		for _, t := range auth.Tokens {
			table[t.Token] = identity.Identity{OwnerID: t.OwnerID, DisplayName: t.DisplayName}
		}
		return identity.NewTokens(table)
	case AuthModeGoogle:
		return identity.NewGoogle(auth.Google.ClientIDs, auth.Google.CacheSize, auth.Google.CacheTTL)
	default:
		return identity.Static{ID: rt.localIdentity()}
	}
}

func (rt *components) localIdentity() identity.Identity {
	return identity.Identity{OwnerID: rt.cfg.Auth.LocalOwner, DisplayName: rt.cfg.MCP.DisplayName}
}

func (rt *components) registry(broker *sse.Broker) *workspace.Registry {
	return workspace.NewRegistry(workspace.Deps{
		Remote:     rt.store,
		Titler:     rt.titler,
		Translator: rt.translator,
		Recognizer: rt.recognizer,
		Broker:     broker,
		Logger:     rt.logger,
	})
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	cfg := rt.cfg
	logger := rt.logger

	// SSE broker.
	broker := sse.NewBroker(cfg.App.EventThrottle)
	defer broker.Close()

	registry := rt.registry(broker)
	defer registry.Close()

	provider := rt.provider()
	apiRouter := api.NewRouter(registry, provider, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Forward external vault edits to the owners' clients.
	if rt.vault != nil && cfg.Store.Vault.Watch {
		g.Go(func() error {
			err := rt.vault.Watch(gCtx, logger, func(c vault.ExternalChange) {
				registry.Hint(c.OwnerID, c.NoteID, c.Kind)
			})
			if err != nil {
				logger.Error("vault watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Close the event streams first so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the server has been shut down, so the
// vault watcher stops too.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdio as the configured local owner.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	registry := rt.registry(nil)
	defer registry.Close()

	srv := mcpserver.New(registry, rt.localIdentity(), rt.translator, rt.titler)
	rt.logger.Info("MCP server starting on stdio", slog.String("owner", rt.cfg.Auth.LocalOwner))
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
