package domain

import "errors"

var (
	// ErrInvalidQuery signals a query request rejected before reaching the engine.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrQueryRequired signals a missing or blank query text.
	ErrQueryRequired = errors.New("query required")
	// ErrEngineUnavailable signals that the vector store could not be reached.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrDimensionMismatch signals an embedding whose length differs from the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrLengthMismatch signals parallel upsert slices of different lengths.
	ErrLengthMismatch = errors.New("ids, bodies and metadata length mismatch")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")

	// ErrNoSourceFiles signals that a file selection matched nothing.
	ErrNoSourceFiles = errors.New("no source files")
)
