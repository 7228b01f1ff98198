// Package memory is a process-local collection with brute-force cosine search.
// Nothing survives a restart; it backs local runs and tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/domain/document"
	"github.com/kailas-cloud/recall/internal/domain/search/filter"
	"github.com/kailas-cloud/recall/internal/domain/search/result"
)

type entry struct {
	body   string
	vector []float32
	fields map[string]string
}

// Engine holds one collection in memory.
type Engine struct {
	name      string
	documents domain.Embedder
	queries   domain.Embedder

	mu   sync.RWMutex
	dim  int
	docs map[string]entry
}

// New creates an empty collection. queries may be nil to reuse documents.
func New(name string, documents, queries domain.Embedder) *Engine {
	if queries == nil {
		queries = documents
	}
	return &Engine{name: name, documents: documents, queries: queries, docs: make(map[string]entry)}
}

// Collection returns a handle; the collection always exists.
func (e *Engine) Collection(_ context.Context) (domain.Collection, error) {
	return &handle{e: e}, nil
}

// Info reports the collection name and location.
func (e *Engine) Info() domain.CollectionInfo {
	return domain.CollectionInfo{Name: e.name, Location: "memory://" + e.name}
}

// Ping always succeeds.
func (e *Engine) Ping(_ context.Context) error { return nil }

// Reset empties the collection and forgets its dimension.
func (e *Engine) Reset(_ context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.docs)
	e.docs = make(map[string]entry)
	e.dim = 0
	return n, nil
}

type handle struct{ e *Engine }

func (h *handle) Upsert(ctx context.Context, ids, bodies []string, metas []document.Metadata) error {
	if len(ids) != len(bodies) || len(ids) != len(metas) {
		return fmt.Errorf("%w: %d ids, %d bodies, %d metadata", domain.ErrLengthMismatch, len(ids), len(bodies), len(metas))
	}
	if len(ids) == 0 {
		return nil
	}

	emb, err := domain.BatchEmbed(ctx, h.e.documents, bodies)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(emb.Embeddings) != len(ids) {
		return fmt.Errorf("embed documents: got %d vectors for %d bodies", len(emb.Embeddings), len(ids))
	}

	h.e.mu.Lock()
	defer h.e.mu.Unlock()

	for _, v := range emb.Embeddings {
		if err := h.e.checkDimLocked(len(v)); err != nil {
			return err
		}
	}
	for i, id := range ids {
		h.e.docs[id] = entry{body: bodies[i], vector: emb.Embeddings[i], fields: metas[i].Fields()}
	}
	return nil
}

func (h *handle) Query(ctx context.Context, text string, limit int, p *filter.Predicate) ([]result.Hit, error) {
	emb, err := h.e.queries.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	h.e.mu.RLock()
	defer h.e.mu.RUnlock()

	if h.e.dim != 0 && len(emb.Embedding) != h.e.dim {
		return nil, fmt.Errorf("%w: query has %d, collection has %d",
			domain.ErrDimensionMismatch, len(emb.Embedding), h.e.dim)
	}

	type scored struct {
		id   string
		dist float64
	}
	var candidates []scored
	for id, d := range h.e.docs {
		if p != nil && !p.Match(d.fields) {
			continue
		}
		candidates = append(candidates, scored{id: id, dist: cosineDistance(emb.Embedding, d.vector)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	hits := make([]result.Hit, len(candidates))
	for i, c := range candidates {
		d := h.e.docs[c.id]
		dist := c.dist
		fields := make(map[string]string, len(d.fields))
		for k, v := range d.fields {
			fields[k] = v
		}
		hits[i] = result.NewHit(c.id, d.body, &dist, fields)
	}
	return hits, nil
}

func (h *handle) Count(_ context.Context) (int, error) {
	h.e.mu.RLock()
	defer h.e.mu.RUnlock()
	return len(h.e.docs), nil
}

func (e *Engine) checkDimLocked(n int) error {
	if e.dim == 0 {
		e.dim = n
		return nil
	}
	if n != e.dim {
		return fmt.Errorf("%w: document has %d, collection has %d", domain.ErrDimensionMismatch, n, e.dim)
	}
	return nil
}

// cosineDistance is 1 - cos(a, b); zero vectors are at distance 1.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
