package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/guard"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/observability"
	"github.com/hyperjump/kotae/internal/prompt"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Store       *storage.SQLiteStorage
	Keywords    *keyword.BleveIndex
	Provider    embedding.Provider
	Embedder    *embedding.Orchestrator
	Index       *vector.SQLiteIndex
	Syncer      *vector.Syncer
	Coordinator *indexer.Coordinator
	Retriever   *retrieval.Retriever
	Tracker     *observability.Tracker
	Chat        *chat.Service
	Generator   llm.Generator
}

// Close releases the store, the keyword index and provider connections.
func (c *Components) Close() error {
	var errs []error
	if c.Generator != nil {
		if closer, ok := c.Generator.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	if c.Provider != nil {
		errs = append(errs, c.Provider.Close())
	}
	if c.Keywords != nil {
		errs = append(errs, c.Keywords.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}

// ServerDeps returns the services the HTTP API needs.
func (c *Components) ServerDeps() server.Deps {
	return server.Deps{
		Store:       c.Store,
		Coordinator: c.Coordinator,
		Retriever:   c.Retriever,
		Chat:        c.Chat,
		Tracker:     c.Tracker,
		Keywords:    c.Keywords,
		Index:       c.Index,
		Syncer:      c.Syncer,
	}
}

// initializeComponents wires the pipeline from cfg. When gen is nil an OpenAI client is
// created; without an API key, generation fails per question and everything else works.
func initializeComponents(cfg *config.Config, logger *zap.Logger, gen llm.Generator) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	c.Store, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Keywords, err = keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	provider, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	c.Provider = provider
	c.Embedder = embedding.NewOrchestrator(c.Store, c.Provider, cfg.Embedding, embedding.WithLogger(logger))

	c.Index = vector.NewSQLiteIndex(c.Store.DB())
	c.Syncer = vector.NewSyncer(c.Index,
		vector.WithQuarantine(c.Store),
		vector.WithDimensions(cfg.Embedding.Dimensions),
		vector.WithLogger(logger),
	)

	segmenter, err := indexer.NewSegmenter(cfg.Chunking)
	if err != nil {
		return nil, err
	}
	c.Coordinator = indexer.NewCoordinator(c.Store, segmenter, c.Embedder, c.Syncer, c.Keywords,
		extract.NewExtractor(), *cfg, indexer.WithLogger(logger))
	c.Retriever = retrieval.New(c.Index, c.Store, c.Embedder, cfg.Retrieval, retrieval.WithLogger(logger))
	c.Tracker = observability.NewTracker(c.Store, observability.WithLogger(logger))

	c.Generator = gen
	if c.Generator == nil {
		client, genErr := llm.NewOpenAI(cfg.LLM, llm.WithLogger(logger))
		if genErr != nil {
			logger.Warn("answer generation disabled", zap.Error(genErr))
			c.Generator = llm.Unavailable{Err: genErr}
		} else {
			c.Generator = client
		}
	}
	c.Chat = chat.NewService(guard.New(cfg.Guard), c.Retriever, prompt.NewBuilder(""), c.Generator, c.Tracker,
		cfg.Retrieval, chat.WithLogger(logger), chat.WithQueryCost(c.Embedder.Cost))
	return c, nil
}

// withComponents runs fn with a session and initialized components, closing both after.
// ctx is cancelled on interrupt.
func withComponents(fn func(ctx context.Context, s *session, c *Components) error) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	c, err := initializeComponents(s.cfg, s.logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			s.logger.Warn("close failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, s, c)
}
