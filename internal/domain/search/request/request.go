package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/domain/search/filter"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length in bytes.
	MaxQueryLength = 8192
	DefaultTopK    = 5
	MaxTopK        = 20
)

// Limits overrides the top_k defaults. Zero fields fall back to the constants.
type Limits struct {
	DefaultTopK int
	MaxTopK     int
}

func (l Limits) resolve() Limits {
	if l.DefaultTopK <= 0 {
		l.DefaultTopK = DefaultTopK
	}
	if l.MaxTopK <= 0 {
		l.MaxTopK = MaxTopK
	}
	if l.DefaultTopK > l.MaxTopK {
		l.DefaultTopK = l.MaxTopK
	}
	return l
}

// Request is a validated similarity query.
type Request struct {
	query  string
	topK   int
	filter filter.Query
}

// New validates a query. The text is trimmed and must be non-empty.
// A nil topK takes the default; explicit values are clamped to [1, max].
func New(query string, topK *int, f filter.Query, limits Limits) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, domain.ErrQueryRequired
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d bytes)", domain.ErrInvalidQuery, MaxQueryLength)
	}

	l := limits.resolve()
	k := l.DefaultTopK
	if topK != nil {
		k = min(max(*topK, 1), l.MaxTopK)
	}

	return Request{query: query, topK: k, filter: f}, nil
}

// Query returns the trimmed query text.
func (r *Request) Query() string { return r.query }

// TopK returns the number of hits to retrieve.
func (r *Request) TopK() int { return r.topK }

// Filter returns the raw, uncompiled filter.
func (r *Request) Filter() filter.Query { return r.filter }
