package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/config"
	"github.com/hyperjump/kizuna/internal/embedding"
	"github.com/hyperjump/kizuna/internal/extract"
	"github.com/hyperjump/kizuna/internal/index"
	"github.com/hyperjump/kizuna/internal/indexer"
	"github.com/hyperjump/kizuna/internal/persist"
	"github.com/hyperjump/kizuna/internal/ranking"
	"github.com/hyperjump/kizuna/internal/recommend"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/internal/vector"
)

// Components holds everything a command needs, wired from config.
type Components struct {
	Storage   *storage.SQLiteStorage
	Embedder  *embedding.Guarded
	Persister persist.Adapter
	Registry  *index.Registry
	Indexer   *indexer.Indexer
	Engine    *recommend.Engine
}

// Close releases resources in reverse order of creation.
func (c *Components) Close() {
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
	if closer, ok := c.Persister.(io.Closer); ok {
		_ = closer.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	c.Embedder, err = embedding.New(ctx, embedding.Options{
		Provider:          cfg.Embedding.Provider,
		Model:             cfg.Embedding.Model,
		APIKey:            cfg.Embedding.APIKey,
		BaseURL:           cfg.Embedding.BaseURL,
		Dimensions:        cfg.Embedding.Dimensions,
		Timeout:           cfg.Embedding.Timeout,
		CacheSize:         cfg.Embedding.CacheSize,
		RateLimit:         cfg.Embedding.RateLimit,
		RateBurst:         cfg.Embedding.RateBurst,
		AllowMockFallback: cfg.Embedding.AllowMockFallback,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	logger.Info("embedder initialized",
		zap.String("name", c.Embedder.Name()),
		zap.Bool("fallback", embedding.IsFallback(c.Embedder)))

	c.Persister, c.Registry, err = initializeIndices(ctx, cfg, c.Embedder, logger)
	if err != nil {
		return nil, err
	}

	c.Indexer = indexer.New(c.Registry, store, c.Embedder,
		indexer.WithLogger(logger.Named("indexer")),
		indexer.WithExtractor(extract.NewExtractor()),
		indexer.WithImportClass(cfg.Import.Class),
		indexer.WithExtensions(cfg.Import.Extensions),
		indexer.WithConcurrency(cfg.Embedding.Concurrency))
	c.Engine = recommend.NewEngine(c.Registry, store, c.Embedder, ranking.NewScorer(&cfg.Scoring),
		recommend.WithLogger(logger.Named("recommend")),
		recommend.WithConcurrency(cfg.Embedding.Concurrency))

	ok = true
	return c, nil
}

// initializeIndices opens the snapshot backend and restores every class. A
// nil emb skips the embedder check, for read-only commands.
func initializeIndices(ctx context.Context, cfg *config.Config, emb embedding.Embedder, logger *zap.Logger) (persist.Adapter, *index.Registry, error) {
	p, err := newPersister(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	reg, err := newRegistry(cfg, p, emb, logger)
	if err == nil {
		err = reg.RestoreAll(ctx)
	}
	if err != nil {
		if closer, ok := p.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, nil, fmt.Errorf("failed to restore indices: %w", err)
	}
	for _, s := range reg.Stats() {
		logger.Info("index restored",
			zap.String("class", s.Class),
			zap.Int("live", s.Live),
			zap.Int("tombstones", s.Tombstones))
	}
	return p, reg, nil
}

func newPersister(ctx context.Context, cfg *config.Config, logger *zap.Logger) (persist.Adapter, error) {
	switch cfg.Storage.SnapshotBackend {
	case config.BackendS3:
		s3 := cfg.Storage.S3
		a, err := persist.NewObjectAdapter(persist.ObjectOptions{
			Endpoint:  s3.Endpoint,
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			UseSSL:    s3.UseSSL,
			Logger:    logger.Named("s3"),
		})
		if err != nil {
			return nil, err
		}
		if err := a.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to open snapshot bucket: %w", err)
		}
		return a, nil
	case config.BackendBadger:
		a, err := persist.NewBadgerAdapter(persist.BadgerOptions{
			Dir:    cfg.Storage.SnapshotDir,
			Logger: logger.Named("badger"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		return a, nil
	default:
		a, err := persist.NewFileAdapter(cfg.Storage.SnapshotDir, persist.WithFileLogger(logger.Named("persist")))
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot dir: %w", err)
		}
		return a, nil
	}
}

// newRegistry creates one empty manager per configured class. A FAISS store
// that is not compiled in falls back to flat search.
func newRegistry(cfg *config.Config, p persist.Adapter, emb embedding.Embedder, logger *zap.Logger) (*index.Registry, error) {
	opts := []index.Option{
		index.WithLogger(logger.Named("index")),
		index.WithPersister(p),
	}
	if emb != nil {
		opts = append(opts, index.WithEmbedder(emb.Name(), embedding.IsFallback(emb)))
	}
	managers := make([]*index.Manager, 0, len(cfg.Index.Classes))
	for _, class := range cfg.Index.Classes {
		store, err := vector.NewStore(cfg.Index.StoreType, cfg.Embedding.Dimensions)
		if err != nil {
			logger.Warn("failed to create vector store, falling back to flat",
				zap.String("requested_type", cfg.Index.StoreType),
				zap.Error(err))
			if store, err = vector.NewStore(string(vector.StoreTypeFlat), cfg.Embedding.Dimensions); err != nil {
				return nil, fmt.Errorf("failed to create vector store: %w", err)
			}
		}
		policy := index.NewSnapshotPolicy(cfg.Index.SnapshotEvery, cfg.Index.SnapshotInterval)
		m, err := index.New(class, store, append(opts, index.WithPolicy(policy))...)
		if err != nil {
			return nil, fmt.Errorf("failed to create index %s: %w", class, err)
		}
		managers = append(managers, m)
	}
	return index.NewRegistry(logger.Named("registry"), managers...)
}
