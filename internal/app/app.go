// Package app assembles the storage engine and embedder chain shared by
// recall-server and recall-ingest.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recall/internal/config"
	"github.com/kailas-cloud/recall/internal/db/valkey"
	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/metrics"
	collectionrepo "github.com/kailas-cloud/recall/internal/repository/collection"
	"github.com/kailas-cloud/recall/internal/repository/embcache"
	"github.com/kailas-cloud/recall/internal/repository/memory"
	openaiEmb "github.com/kailas-cloud/recall/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/recall/internal/usecase/embedding"
)

// Engine is what both binaries need from the storage side.
type Engine interface {
	Collection(ctx context.Context) (domain.Collection, error)
	Info() domain.CollectionInfo
	Ping(ctx context.Context) error
	Reset(ctx context.Context) (int, error)
}

// Runtime owns the process-wide store connection.
type Runtime struct {
	Engine   Engine
	Provider *openaiEmb.Embedder
	store    *valkey.Store
}

// Close releases the store connection.
func (r *Runtime) Close() {
	if r.store != nil {
		r.store.Close()
	}
}

// Open connects to the configured store and builds the engine.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	metrics.RegisterEmbeddingMetrics()

	rt := &Runtime{}
	if cfg.Database.Driver != config.DriverMemory {
		store, err := valkey.NewStore(valkey.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
			Flavor:   valkey.Flavor(cfg.Database.Driver),
		})
		if err != nil {
			return nil, fmt.Errorf("create database store: %w", err)
		}
		timeout := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, timeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("database not ready: %w", err)
		}
		rt.store = store
		logger.Info("Connected to database", zap.String("location", store.Location()))
	}

	rt.Provider = openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Timeout:    cfg.Embedding.Timeout(),
		Logger:     logger,
	})

	docEmbedder := buildEmbedder(rt.Provider, &cfg.Embedding, cfg.Embedding.DocumentInstruction, rt.store, cfg.Storage.KeyPrefix, logger)
	queryEmbedder := buildEmbedder(rt.Provider, &cfg.Embedding, cfg.Embedding.QueryInstruction, rt.store, cfg.Storage.KeyPrefix, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	if rt.store == nil {
		rt.Engine = memory.New(cfg.Index.Name, docEmbedder, queryEmbedder)
		logger.Warn("Using in-memory collection, documents will not survive a restart")
		return rt, nil
	}

	engine, err := collectionrepo.New(rt.store, docEmbedder, queryEmbedder, collectionrepo.Config{
		Name:       cfg.Index.Name,
		KeyPrefix:  cfg.Storage.KeyPrefix,
		Dimensions: cfg.Embedding.Dimensions,
		HNSW: collectionrepo.HNSWConfig{
			M:           cfg.Index.HNSWM,
			EFConstruct: cfg.Index.HNSWEFConstruct,
			Flat:        cfg.Index.Flat,
		},
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("create collection engine: %w", err)
	}
	rt.Engine = engine.WithLogger(logger)
	return rt, nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	base *openaiEmb.Embedder,
	cfg *config.EmbeddingConfig,
	instruction string,
	store *valkey.Store,
	keyPrefix string,
	logger *zap.Logger,
) domain.Embedder {
	var embedder domain.Embedder = base
	if store != nil && cfg.Cache.Enabled {
		embedder = embcache.New(base, store, embcache.Options{
			KeyPrefix: keyPrefix,
			Model:     cfg.Model,
			TTL:       cfg.Cache.TTL(),
		}, metrics.EmbeddingCacheTotal, logger)
	}

	policy := embeddinguc.RetryPolicy{
		MaxRetries: uint64(cfg.Retry.MaxRetries), //nolint:gosec // validated non-negative
		Base:       time.Duration(cfg.Retry.BaseMs) * time.Millisecond,
	}
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, policy, logger).
		WithMaxBatchSize(cfg.MaxBatchSize)

	// Instruction prefix (outermost, so the cache key includes the instruction)
	return domain.NewInstructionEmbedder(embedder, instruction)
}
