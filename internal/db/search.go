package db

import "github.com/kailas-cloud/recall/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	// Filter is applied as a pre-filter. Nil means the whole index.
	Filter       *filter.Predicate
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key string
	// Distance is the raw __vector_score, nil when the engine omitted it.
	Distance *float64
	Fields   map[string]string
}
