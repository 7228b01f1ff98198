package query

import (
	"context"

	"github.com/kailas-cloud/recall/internal/domain"
)

// Engine hands out collection handles and describes the collection.
type Engine interface {
	Collection(ctx context.Context) (domain.Collection, error)
	Info() domain.CollectionInfo
}
