// Package server provides the HTTP API: question answering, document management,
// retrieval and index maintenance.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/observability"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Deps are the components the API serves. Keywords may be nil.
type Deps struct {
	Store       storage.Storage
	Coordinator *indexer.Coordinator
	Retriever   *retrieval.Retriever
	Chat        *chat.Service
	Tracker     *observability.Tracker
	Keywords    keyword.Index
	Index       vector.Index
	Syncer      *vector.Syncer
}

// Server is the HTTP server for the API.
type Server struct {
	Deps
	cfg    config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	return &Server{Deps: deps, cfg: cfg, logger: utils.OrNop(logger)}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	timeout := time.Duration(s.cfg.Server.RequestTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/chat", func(r chi.Router) {
			r.Post("/ask", s.handleAsk)
			r.Get("/metrics", s.handleStatistics)
			r.Get("/metrics/recent", s.handleRecentMetrics)
			r.Get("/metrics/bottlenecks", s.handleBottlenecks)
		})
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.handleUpload)
			r.Get("/", s.handleListDocuments)
			r.Get("/{id}", s.handleGetDocument)
			r.Delete("/{id}", s.handleDeleteDocument)
			r.Get("/{id}/chunks", s.handleDocumentChunks)
			r.Post("/{id}/rechunk", s.handleRechunk)
		})
		r.Get("/chunks/search", s.handleKeywordSearch)
		r.Get("/chunks/{id}/context", s.handleChunkContext)
		r.Post("/index/sync", s.handleSync)
		r.Post("/retrieve", s.handleRetrieve)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
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
