package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/sasspipe/internal/history"
	"github.com/mattjoyce/sasspipe/internal/protocol"
	"github.com/mattjoyce/sasspipe/internal/render"
)

// Renderer is the command surface the API exposes over HTTP.
type Renderer interface {
	Render(ctx context.Context, spec render.Spec) (*protocol.Result, []protocol.CompileError, error)
	Preview(ctx context.Context, spec render.PreviewSpec) (*protocol.Result, []protocol.CompileError, error)
	DeleteTempFiles() error
	Mkdirp(path string) error
	SetTempDir(path string) error
	Depth() int
}

// HistoryReader lists recent compile outcomes.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
}

// Server is the HTTP command surface.
type Server struct {
	config    Config
	svc       Renderer
	hist      HistoryReader // may be nil
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance.
func New(config Config, svc Renderer, hist HistoryReader, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		svc:       svc,
		hist:      hist,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking until ctx is cancelled).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // compiles queue behind one worker
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/render", s.handleRender)
		r.Post("/preview", s.handlePreview)
		r.Delete("/tempfiles", s.handleDeleteTempFiles)
		r.Post("/mkdirp", s.handleMkdirp)
		r.Put("/tempdir", s.handleSetTempDir)
		r.Get("/jobs", s.handleJobs)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
