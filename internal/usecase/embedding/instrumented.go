package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	retry "github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/metrics"
)

// DefaultMaxAPIBatchSize is the largest number of texts sent in one provider request.
const DefaultMaxAPIBatchSize = 256

// RetryPolicy controls back-off on provider rate limiting.
// MaxRetries of zero disables retries.
type RetryPolicy struct {
	MaxRetries uint64
	Base       time.Duration
}

// DefaultRetryPolicy backs off 1s, 1s, 2s, 3s, 5s.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 5, Base: time.Second}

// InstrumentedEmbedder wraps Embedder with rate-limit retries, request
// chunking and logging. Transport metrics (requests, duration, tokens) are
// recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner        domain.Embedder
	provider     string
	model        string
	retry        RetryPolicy
	maxBatchSize int
	logger       *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with retries and observability.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	policy RetryPolicy, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:        inner,
		provider:     provider,
		model:        model,
		retry:        policy,
		maxBatchSize: DefaultMaxAPIBatchSize,
		logger:       logger,
	}
}

// WithMaxBatchSize overrides the per-request chunk size.
func (p *InstrumentedEmbedder) WithMaxBatchSize(n int) *InstrumentedEmbedder {
	if n > 0 {
		p.maxBatchSize = n
	}
	return p
}

// Embed delegates to the inner embedder, retrying on rate limiting.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	start := time.Now()

	var result domain.EmbeddingResult
	err := p.withRetry(ctx, func(ctx context.Context) error {
		var err error
		result, err = p.inner.Embed(ctx, text)
		return err //nolint:wrapcheck // wrapped below
	})

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// BatchEmbed splits texts into provider-sized chunks and delegates each.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()

	result, err := p.embedChunked(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

func (p *InstrumentedEmbedder) embedChunked(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}

	for offset := 0; offset < len(texts); offset += p.maxBatchSize {
		end := min(offset+p.maxBatchSize, len(texts))
		chunk := texts[offset:end]

		var res domain.BatchEmbeddingResult
		err := p.withRetry(ctx, func(ctx context.Context) error {
			var err error
			res, err = domain.BatchEmbed(ctx, p.inner, chunk)
			return err //nolint:wrapcheck // wrapped below
		})
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	return out, nil
}

// withRetry runs fn with Fibonacci back-off; only domain.ErrRateLimited is retried.
func (p *InstrumentedEmbedder) withRetry(ctx context.Context, fn func(context.Context) error) error {
	if p.retry.MaxRetries == 0 {
		return fn(ctx)
	}

	base := p.retry.Base
	if base <= 0 {
		base = DefaultRetryPolicy.Base
	}
	b := retry.WithMaxRetries(p.retry.MaxRetries, retry.NewFibonacci(base))
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error { //nolint:wrapcheck // callers wrap
		attempt++
		err := fn(ctx)
		if errors.Is(err, domain.ErrRateLimited) {
			metrics.EmbeddingRetriesTotal.WithLabelValues(p.provider).Inc()
			p.logger.Warn("Embedding provider rate limited, backing off",
				zap.String("provider", p.provider),
				zap.Int("attempt", attempt),
			)
			return retry.RetryableError(err)
		}
		return err
	})
}
