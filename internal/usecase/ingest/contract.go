package ingest

import (
	"context"
	"time"

	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/ledger"
)

// Engine hands out a fresh collection handle per operation.
type Engine interface {
	Collection(ctx context.Context) (domain.Collection, error)
}

// Ledger remembers the state of files at their last successful ingest.
type Ledger interface {
	Unchanged(ctx context.Context, path string, size int64, modTime time.Time) (bool, error)
	Record(ctx context.Context, e ledger.Entry) error
}
