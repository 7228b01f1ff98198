package domain

import (
	"context"

	"github.com/kailas-cloud/recall/internal/domain/document"
	"github.com/kailas-cloud/recall/internal/domain/search/filter"
	"github.com/kailas-cloud/recall/internal/domain/search/result"
)

// Collection is a short-lived handle to the persistent document index.
// Callers obtain a fresh handle per operation and drop it afterwards.
type Collection interface {
	// Upsert stores documents by id. ids, bodies and metas are parallel;
	// an existing id is replaced as a whole.
	Upsert(ctx context.Context, ids, bodies []string, metas []document.Metadata) error
	// Query returns up to limit documents nearest to text, nearest first.
	// A nil predicate searches the whole collection.
	Query(ctx context.Context, text string, limit int, p *filter.Predicate) ([]result.Hit, error)
	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// CollectionInfo describes the collection for status endpoints.
type CollectionInfo struct {
	Name     string
	Location string
}
