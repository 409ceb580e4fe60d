// Package server provides the HTTP API for kizuna.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/config"
	"github.com/hyperjump/kizuna/internal/embedding"
	"github.com/hyperjump/kizuna/internal/index"
	"github.com/hyperjump/kizuna/internal/indexer"
	"github.com/hyperjump/kizuna/internal/recommend"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/pkg/utils"
)

// Server is the HTTP server for the kizuna API.
type Server struct {
	registry   *index.Registry
	indexer    *indexer.Indexer
	engine     *recommend.Engine
	storage    storage.Storage
	embedder   embedding.Embedder
	config     *config.ServerConfig
	logger     *zap.Logger
	diskPaths  []string
	importDirs []string
	server     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithDiskPaths lists the paths whose size the stats endpoint reports.
func WithDiskPaths(paths ...string) Option {
	return func(s *Server) { s.diskPaths = paths }
}

// WithImportDirectories lists the watched résumé directories for /api/v1/import.
func WithImportDirectories(dirs []string) Option {
	return func(s *Server) { s.importDirs = dirs }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	registry *index.Registry,
	idx *indexer.Indexer,
	engine *recommend.Engine,
	store storage.Storage,
	embedder embedding.Embedder,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		registry: registry,
		indexer:  idx,
		engine:   engine,
		storage:  store,
		embedder: embedder,
		config:   cfg,
		logger:   utils.OrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Post("/recommendations/batch", s.handleBatch)
		r.Post("/match", s.handleMatch)
		r.Get("/import", s.handleImportList)
		r.Post("/import", s.handleImport)

		r.Route("/{class}", func(r chi.Router) {
			r.Post("/profiles", s.handleIndexProfile)
			r.Get("/profiles/{id}", s.handleGetProfile)
			r.Delete("/profiles/{id}", s.handleDeleteProfile)
			r.Post("/recommendations/{id}", s.handleRecommend)
			r.Post("/recommend", s.handleRecommendText)
			r.Post("/rebuild", s.handleRebuild)
			r.Post("/snapshot", s.handleSnapshot)
			r.Post("/populate", s.handlePopulate)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
