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

	"github.com/starford/council/internal/api"
	"github.com/starford/council/internal/docgen"
	"github.com/starford/council/internal/meetingservice"
	"github.com/starford/council/internal/models"
	"github.com/starford/council/internal/poller"
	"github.com/starford/council/internal/sse"
	"github.com/starford/council/internal/storage"
	"github.com/starford/council/internal/store"
	"github.com/starford/council/internal/view"
)

// core holds the components shared by every command.
type core struct {
	logger *slog.Logger
	loc    *time.Location
	db     *store.DB
	files  storage.Provider
	gen    *docgen.Generator
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// openCore opens the database and agenda storage and builds the generator.
// onDocument, if non-nil, receives generator events.
func openCore(ctx context.Context, cfg *Config, logger *slog.Logger, onDocument docgen.EventCallback) (*core, error) {
	loc, err := cfg.View.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	if err := os.MkdirAll(cfg.Documents.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	files, err := storage.NewFS(cfg.Documents.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := db.EnsureCommittees(ctx, cfg.Committees); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed committees: %w", err)
	}

	renderer := &docgen.ChromeRenderer{
		ExecPath: cfg.Documents.ChromePath,
		Timeout:  cfg.Documents.RenderTimeout,
	}
	genOpts := []docgen.Option{
		docgen.WithWorkers(cfg.Documents.Workers),
		docgen.WithLogger(logger),
		docgen.WithClock(func() time.Time { return time.Now().In(loc) }),
	}
	if onDocument != nil {
		genOpts = append(genOpts, docgen.WithEventCallback(onDocument))
	}
	gen, err := docgen.NewGenerator(db, files, renderer, genOpts...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init generator: %w", err)
	}

	return &core{logger: logger, loc: loc, db: db, files: files, gen: gen}, nil
}

func (c *core) service(onEvent meetingservice.EventCallback) *meetingservice.Service {
	opts := []meetingservice.Option{
		meetingservice.WithLogger(c.logger),
		meetingservice.WithClock(func() time.Time { return time.Now().In(c.loc) }),
	}
	if onEvent != nil {
		opts = append(opts, meetingservice.WithEventCallback(onEvent))
	}
	return meetingservice.NewService(c.db, c.files, c.gen, opts...)
}

type viewRefresher interface {
	Refresh(m *models.Meeting) int
}

type refreshPublisher interface {
	Refreshed(ctx context.Context, m *models.Meeting)
}

// agendaReady fans a meeting whose agenda just landed out to the rendered
// months and the event stream.
type agendaReady struct {
	views viewRefresher
	pub   refreshPublisher
}

func (a *agendaReady) handle(ctx context.Context, m *models.Meeting) {
	if a.views != nil {
		a.views.Refresh(m)
	}
	a.pub.Refreshed(ctx, m)
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(cfg, os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("documents_path", cfg.Documents.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("timezone", cfg.View.Timezone),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := openCore(ctx, cfg, logger, broker.PublishDocumentEvent)
	if err != nil {
		return err
	}
	defer c.db.Close()

	// Reconcile stored agendas with the records before serving.
	if err := c.gen.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	svc := c.service(broker.PublishMeetingEvent)

	ready := &agendaReady{pub: broker}
	polls := poller.New(svc, broker,
		poller.WithInterval(cfg.Documents.PollInterval),
		poller.WithMaxAttempts(cfg.Documents.PollMaxAttempts),
		poller.WithLogger(logger),
		poller.WithOnReady(ready.handle),
	)
	defer polls.Close()

	ctrl := view.NewController(svc, polls, broker, broker,
		view.WithClickWindow(cfg.View.ClickWindow),
		view.WithClock(func() time.Time { return time.Now().In(c.loc) }),
		view.WithLogger(logger),
	)
	defer ctrl.Close()
	// Polls start from the controller, so the hook is complete before it can fire.
	ready.views = ctrl

	apiRouter := api.NewRouter(svc, ctrl, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, c.loc)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := c.db.Committees(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Agenda PDFs are linked from calendar events and opened directly by browsers.
	r.Get(docgen.URLPrefix+"{name}", api.NewFileHandler(c.files).ServeFile)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Agenda generation workers.
	g.Go(func() error {
		return c.gen.Run(gCtx)
	})

	// Agenda directory watcher.
	g.Go(func() error {
		if err := c.gen.Watch(gCtx); err != nil {
			logger.Warn("agenda watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Periodic sweep for upcoming meetings still missing an agenda.
	if cfg.Documents.Sweep != "" {
		g.Go(func() error {
			return c.gen.Schedule(gCtx, cfg.Documents.Sweep)
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

// errShutdown cancels the group context so the background workers stop
// once the HTTP server is down.
var errShutdown = errors.New("shutdown")
