// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/taboard/internal/api"
	"github.com/starford/taboard/internal/apperr"
	"github.com/starford/taboard/internal/auth"
	"github.com/starford/taboard/internal/boardservice"
	"github.com/starford/taboard/internal/connection"
	"github.com/starford/taboard/internal/mcpserver"
	"github.com/starford/taboard/internal/models"
	"github.com/starford/taboard/internal/remote"
	"github.com/starford/taboard/internal/sse"
	"github.com/starford/taboard/internal/state"
	"github.com/starford/taboard/internal/storage"
	"github.com/starford/taboard/internal/syncer"
)

// engine holds the components shared by every run mode.
type engine struct {
	cfg    *Config
	logger *slog.Logger

	logFile  io.Closer
	provider storage.Provider
	fs       *storage.FS // nil unless the file driver is used
	pers     *storage.Persistence
	store    *state.Store
	client   *remote.Client
	conn     *connection.Manager
	orch     *syncer.Orchestrator
	svc      *boardservice.Service
}

func newEngine(ctx context.Context, opts ...Option) (*engine, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	e := &engine{cfg: cfg}
	e.logger, e.logFile = newLogger(cfg.App, app.logOutput)
	slog.SetDefault(e.logger)

	e.logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("remote_file", cfg.Remote.FileName),
		slog.Duration("sync_interval", cfg.Sync.Interval),
		slog.String("log_level", cfg.App.LogLevel.String()))

	switch cfg.Storage.Driver {
	case StorageDriverSQLite:
		db, err := storage.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("init storage: %w", err)
		}
		e.provider = db
	default:
		fs, err := storage.NewFS(cfg.Storage.Path)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("init storage: %w", err)
		}
		e.fs, e.provider = fs, fs
	}

	e.pers = storage.NewPersistence(e.provider, e.logger,
		storage.WithDebounce(cfg.Storage.Debounce),
		storage.WithRetryDelay(cfg.Storage.RetryDelay),
	)

	e.store = state.New()
	initial, ok := e.pers.Load()
	if !ok {
		e.logger.Info("No saved board found, starting from the default document")
	}
	e.store.InitState(initial)

	e.client = remote.New(
		remote.WithEndpoints(cfg.Remote.Endpoints),
		remote.WithFileName(cfg.Remote.FileName),
		remote.WithRetryDelay(cfg.Remote.RetryDelay),
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Remote.Timeout}),
		remote.WithLogger(e.logger),
	)

	tokens := app.tokens
	if tokens == nil {
		tokens = auth.NewStatic(cfg.Credential.Token)
	}
	e.conn = connection.NewManager(tokens, e.client, e.pers, e.logger)
	if err := e.conn.Init(ctx); err != nil {
		e.logger.Warn("Sync metadata unreadable, starting disconnected", slog.String("error", err.Error()))
	}

	e.orch = syncer.New(e.store, e.conn, e.client, e.pers, e.logger,
		syncer.WithInterval(cfg.Sync.Interval),
		syncer.WithFreshness(cfg.Sync.Freshness),
		syncer.WithLocalChangeDelay(cfg.Sync.LocalChangeDelay),
	)
	e.svc = boardservice.NewService(e.store)
	return e, nil
}

// close stops sync work and flushes the document. Safe on a partially
// built engine.
func (e *engine) close() {
	if e.orch != nil {
		e.orch.Stop()
	}
	if e.pers != nil {
		if err := e.pers.Close(); err != nil {
			e.logger.Error("Final save failed", slog.String("error", err.Error()))
		}
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("Storage close failed", slog.String("error", err.Error()))
		}
	}
	if e.logFile != nil {
		_ = e.logFile.Close()
	}
}

// reloadExternal installs a document written by another process when it is
// newer than ours.
func (e *engine) reloadExternal(s *models.AppState) {
	cur := e.store.GetState()
	if !s.LastUpdated.After(cur.LastUpdated) {
		e.logger.Debug("External change is not newer, ignored",
			slog.Time("external", s.LastUpdated),
			slog.Time("local", cur.LastUpdated))
		return
	}
	if e.store.ReplaceState(s, state.ReplaceOptions{
		PreserveTimestamp: true,
		Event:             &models.Event{Kind: models.EventExternalReload},
		IfLastUpdated:     cur.LastUpdated,
	}) != nil {
		e.logger.Info("Reloaded board written by another process", slog.Time("last_updated", s.LastUpdated))
	}
}

func newLogger(cfg ApplicationConfig, out io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer
	if cfg.LogFile.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
			Compress:   cfg.LogFile.Compress,
		}
		out = io.MultiWriter(out, lj)
		closer = lj
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	return logger, closer
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	e, err := newEngine(ctx, opts...)
	if err != nil {
		return err
	}
	defer e.close()

	cfg, logger := e.cfg, e.logger

	// SSE broker: state and connection changes, freshness check per client.
	broker := sse.NewBroker(250*time.Millisecond, sse.WithOnSubscribe(e.orch.CheckFreshness))
	defer broker.Close()
	unsubState := e.store.Subscribe(broker.PublishState)
	defer unsubState()
	unsubConn := e.conn.Subscribe(func(snap connection.Snapshot) {
		broker.Publish(sse.Event{Type: sse.TypeConnectionChanged, Data: snap})
	})
	defer unsubConn()

	apiRouter := api.NewRouter(e.svc, e.orch, e.conn, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	e.orch.Start(gCtx)

	// Watch the state file for writes by other processes.
	if e.fs != nil {
		g.Go(func() error {
			if err := storage.Watch(gCtx, e.fs, e.pers, logger, e.reloadExternal); err != nil {
				logger.Warn("State watcher unavailable", slog.String("error", err.Error()))
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

		e.orch.Stop()
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the board tools over stdio until the client disconnects.
// Logs go to stderr unless WithLogOutput says otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	e, err := newEngine(ctx, opts...)
	if err != nil {
		return err
	}
	defer e.close()

	e.orch.Start(ctx)
	e.logger.Info("MCP server starting on stdio")
	if err := mcpserver.New(e.svc, e.orch).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// SyncOnce runs a single manual sync and saves the result.
func SyncOnce(ctx context.Context, opts ...Option) (syncer.Outcome, error) {
	e, err := newEngine(ctx, opts...)
	if err != nil {
		return syncer.OutcomeFailed, err
	}
	defer e.close()

	if !e.conn.Connected() {
		return syncer.OutcomeSkipped, fmt.Errorf("sync: %w", apperr.ErrNotConnected)
	}
	unsub := e.store.Subscribe(func(s *models.AppState, _ *models.Event) { e.pers.Save(s) })
	defer unsub()

	outcome, err := e.orch.SyncNow(ctx, syncer.Request{Reason: syncer.ReasonManual})
	if err != nil {
		return outcome, err
	}
	e.logger.Info("Sync finished", slog.String("outcome", string(outcome)))
	return outcome, nil
}
