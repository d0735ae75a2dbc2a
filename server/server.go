package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"feedsync/config"
	"feedsync/models"
	"feedsync/services"
)

// Importer is the part of services.Importer the API triggers.
type Importer interface {
	Run(ctx context.Context, fc *config.FeedConfig) (*services.Result, error)
	RunURL(ctx context.Context, url string) (*services.Result, error)
}

// Trigger starts a configured feed's import without waiting for it.
type Trigger interface {
	Trigger(feedID string) error
}

// JobReader reads import job history.
type JobReader interface {
	GetImportJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
	ListImportJobs(ctx context.Context, limit int) ([]models.ImportJob, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func New(addr string, handlers *Handlers, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(handlers, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "http"),
	}
}

func NewRouter(h *Handlers, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger.With("component", "http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Route("/api/v1/imports", func(r chi.Router) {
		r.Post("/", h.CreateImport)
		r.Get("/", h.ListImports)
		r.Get("/{id}", h.GetImport)
	})
	r.Post("/api/v1/feeds/{id}/trigger", h.TriggerFeed)

	return r
}

// Start blocks until the server stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP API", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP API")
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
