package collection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recall/internal/db"
	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/domain/document"
	"github.com/kailas-cloud/recall/internal/domain/search/filter"
	"github.com/kailas-cloud/recall/internal/domain/search/result"
)

// store is the consumer interface for the engine (ISP).
type store interface {
	ReplaceHashes(ctx context.Context, items []db.HashSetItem) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	Count(ctx context.Context, index string) (int, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	DropIndex(ctx context.Context, name string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Location() string
}

// HNSWConfig holds vector index parameters. Flat switches to brute-force search.
type HNSWConfig struct {
	M           int
	EFConstruct int
	Flat        bool
}

// Config describes the collection the engine serves.
type Config struct {
	Name       string
	KeyPrefix  string
	Dimensions int
	HNSW       HNSWConfig
}

// Engine stores and searches documents in one collection of a Valkey/Redis
// FT index. Stored passages and queries may go through different embedders
// (asymmetric instructions).
type Engine struct {
	store     store
	documents domain.Embedder
	queries   domain.Embedder
	cfg       Config
	logger    *zap.Logger
}

// New creates an engine. queries may be nil to reuse the document embedder.
func New(s store, documents, queries domain.Embedder, cfg Config) (*Engine, error) {
	if cfg.Name == "" {
		return nil, errors.New("collection name is required")
	}
	if !db.IsValidIdentifier(cfg.KeyPrefix + cfg.Name) {
		return nil, fmt.Errorf("collection name %q contains invalid characters", cfg.Name)
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New("vector dimensions must be positive")
	}
	if queries == nil {
		queries = documents
	}
	return &Engine{store: s, documents: documents, queries: queries, cfg: cfg, logger: zap.NewNop()}, nil
}

// WithLogger attaches a logger for index lifecycle events.
func (e *Engine) WithLogger(l *zap.Logger) *Engine {
	e.logger = l
	return e
}

// Info reports the collection name and storage location.
func (e *Engine) Info() domain.CollectionInfo {
	return domain.CollectionInfo{Name: e.cfg.Name, Location: e.store.Location()}
}

// Ping checks that the store answers.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEngineUnavailable, err)
	}
	return nil
}

// Collection returns a fresh handle, creating the index with cosine distance
// on first use.
func (e *Engine) Collection(ctx context.Context) (domain.Collection, error) {
	idx := indexName(e.cfg.KeyPrefix, e.cfg.Name)

	exists, err := e.store.IndexExists(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEngineUnavailable, err)
	}
	if !exists {
		def, err := buildIndex(e.cfg.Name, e.cfg.KeyPrefix, e.cfg.Dimensions, e.cfg.HNSW)
		if err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
		// A concurrent creator may win the race; its index is just as good.
		if err := e.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return nil, fmt.Errorf("create index %s: %w", idx, err)
		}
		e.logger.Info("collection created",
			zap.String("collection", e.cfg.Name),
			zap.String("index", idx),
			zap.Int("dimensions", e.cfg.Dimensions),
		)
	}

	return &handle{engine: e, index: idx}, nil
}

// Reset drops the index and deletes every stored document. The next
// Collection call recreates an empty index. Returns the number of documents
// removed.
func (e *Engine) Reset(ctx context.Context) (int, error) {
	idx := indexName(e.cfg.KeyPrefix, e.cfg.Name)
	if err := e.store.DropIndex(ctx, idx); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return 0, fmt.Errorf("drop index %s: %w", idx, err)
	}

	keys, err := e.store.Scan(ctx, docPrefix(e.cfg.KeyPrefix, e.cfg.Name)+"*")
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", e.cfg.Name, err)
	}
	for i, key := range keys {
		if err := e.store.Del(ctx, key); err != nil {
			return i, fmt.Errorf("delete %s: %w", key, err)
		}
	}

	e.logger.Info("collection reset",
		zap.String("collection", e.cfg.Name),
		zap.Int("documents", len(keys)),
	)
	return len(keys), nil
}

type handle struct {
	engine *Engine
	index  string
}

func (h *handle) Upsert(ctx context.Context, ids, bodies []string, metas []document.Metadata) error {
	if len(ids) != len(bodies) || len(ids) != len(metas) {
		return fmt.Errorf("%w: %d ids, %d bodies, %d metadata", domain.ErrLengthMismatch, len(ids), len(bodies), len(metas))
	}
	if len(ids) == 0 {
		return nil
	}

	e := h.engine
	emb, err := domain.BatchEmbed(ctx, e.documents, bodies)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(emb.Embeddings) != len(ids) {
		return fmt.Errorf("embed documents: got %d vectors for %d bodies", len(emb.Embeddings), len(ids))
	}

	items := make([]db.HashSetItem, len(ids))
	for i, id := range ids {
		if len(emb.Embeddings[i]) != e.cfg.Dimensions {
			return fmt.Errorf("%w: document %s has %d, index has %d",
				domain.ErrDimensionMismatch, id, len(emb.Embeddings[i]), e.cfg.Dimensions)
		}
		items[i] = db.HashSetItem{
			Key:    docKey(e.cfg.KeyPrefix, e.cfg.Name, id),
			Fields: toHash(bodies[i], emb.Embeddings[i], metas[i]),
		}
	}

	if err := e.store.ReplaceHashes(ctx, items); err != nil {
		return fmt.Errorf("store %d documents: %w", len(items), err)
	}
	return nil
}

func (h *handle) Query(ctx context.Context, text string, limit int, p *filter.Predicate) ([]result.Hit, error) {
	e := h.engine
	emb, err := e.queries.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(emb.Embedding) != e.cfg.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d",
			domain.ErrDimensionMismatch, len(emb.Embedding), e.cfg.Dimensions)
	}

	sr, err := e.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    h.index,
		Filter:       p,
		Vector:       emb.Embedding,
		K:            limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", e.cfg.Name, err)
	}

	prefix := docPrefix(e.cfg.KeyPrefix, e.cfg.Name)
	hits := make([]result.Hit, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		content := entry.Fields[fieldContent]
		delete(entry.Fields, fieldContent)
		hits = append(hits, result.NewHit(
			strings.TrimPrefix(entry.Key, prefix), content, entry.Distance, entry.Fields,
		))
	}
	return hits, nil
}

func (h *handle) Count(ctx context.Context) (int, error) {
	n, err := h.engine.store.Count(ctx, h.index)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", h.engine.cfg.Name, err)
	}
	return n, nil
}
