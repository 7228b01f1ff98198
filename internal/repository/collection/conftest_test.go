package collection

import (
	"context"
	"strings"
	"testing"

	"github.com/kailas-cloud/recall/internal/db"
	"github.com/kailas-cloud/recall/internal/domain"
)

const testDim = 3

// mockStore implements the consumer interface for tests.
type mockStore struct {
	replaceFn     func(ctx context.Context, items []db.HashSetItem) error
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	countFn       func(ctx context.Context, index string) (int, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	dropIndexErr  error
	keys          []string
	deleted       []string
	pingErr       error
}

func (m *mockStore) ReplaceHashes(ctx context.Context, items []db.HashSetItem) error {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, items)
	}
	return nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) Count(ctx context.Context, index string) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, index)
	}
	return 0, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return true, nil
}

func (m *mockStore) DropIndex(context.Context, string) error { return m.dropIndexErr }

func (m *mockStore) Scan(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for _, k := range m.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockStore) Del(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *mockStore) Ping(context.Context) error { return m.pingErr }

func (m *mockStore) Location() string { return "valkey://test:6379/0" }

// stubEmbedder returns a fixed vector per call and records inputs.
type stubEmbedder struct {
	vector []float32
	err    error
	texts  []string
	batch  [][]string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	s.texts = append(s.texts, text)
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	return domain.EmbeddingResult{Embedding: s.vector}, nil
}

func (s *stubEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	s.batch = append(s.batch, texts)
	if s.err != nil {
		return domain.BatchEmbeddingResult{}, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func newTestEngine(t *testing.T) (*Engine, *mockStore, *stubEmbedder) {
	t.Helper()
	ms := &mockStore{}
	emb := &stubEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	e, err := New(ms, emb, nil, Config{
		Name:       "forest_memory",
		KeyPrefix:  "recall:",
		Dimensions: testDim,
		HNSW:       HNSWConfig{M: 16, EFConstruct: 200},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, ms, emb
}
