// Package server exposes indexing and retrieval over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/privacy"
	"github.com/hyperjump/kioku/internal/search"
)

// WatchService manages watched material directories.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP API.
type Server struct {
	engine     *search.Engine
	indexer    *indexer.Indexer
	anonymizer *privacy.Anonymizer
	config     *config.Config
	logger     *zap.Logger
	server     *http.Server

	watch      WatchService
	configPath string
	configMu   sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithWatcher enables the watch directory endpoints. When configPath is set,
// directory changes are saved back to the config file.
func WithWatcher(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// NewServer creates a server.
func NewServer(engine *search.Engine, idx *indexer.Indexer, anonymizer *privacy.Anonymizer, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:     engine,
		indexer:    idx,
		anonymizer: anonymizer,
		config:     cfg,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/materials", s.handleIndexMaterial)
		r.Post("/materials/file", s.handleIndexFile)
		r.Post("/summaries", s.handleIndexSummary)
		r.Delete("/sources", s.handleDeleteSources)
		r.Post("/search/hybrid", s.handleHybridSearch)
		r.Post("/search/materials", s.handleSimilarMaterials)
		r.Post("/search/concepts", s.handleRelatedConcepts)
		r.Post("/anonymize", s.handleAnonymize)
		r.Get("/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
