package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/domain/search/filter"
	"github.com/kailas-cloud/recall/internal/domain/search/request"
	"github.com/kailas-cloud/recall/internal/domain/search/result"
	"github.com/kailas-cloud/recall/internal/metrics"
)

// Response is the outcome of one similarity query.
type Response struct {
	Results []result.Scored
	Count   int
	Query   string
}

// Stats describes the collection behind the service.
type Stats struct {
	Collection string
	Total      int
	Location   string
}

// Service answers similarity queries over the collection.
type Service struct {
	engine Engine
	now    func() time.Time
	logger *zap.Logger
}

// New creates a query service.
func New(engine Engine) *Service {
	return &Service{engine: engine, now: time.Now, logger: zap.NewNop()}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	s.logger = l
	return s
}

// WithClock overrides the clock that anchors day windows.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Query compiles the filter against today, asks the collection for the
// nearest documents and formats them.
func (s *Service) Query(ctx context.Context, req *request.Request) (Response, error) {
	var pred *filter.Predicate
	if p, ok := filter.Compile(req.Filter(), s.now()); ok {
		pred = &p
	}

	col, err := s.engine.Collection(ctx)
	if err != nil {
		metrics.QueryRequestsTotal.WithLabelValues("error").Inc()
		return Response{}, fmt.Errorf("open collection: %w", err)
	}

	hits, err := col.Query(ctx, req.Query(), req.TopK(), pred)
	if err != nil {
		metrics.QueryRequestsTotal.WithLabelValues("error").Inc()
		return Response{}, fmt.Errorf("query collection: %w", err)
	}

	scored := result.Format(hits)
	metrics.QueryRequestsTotal.WithLabelValues("ok").Inc()
	metrics.QueryHitsTotal.Add(float64(len(scored)))

	if pred != nil {
		s.logger.Debug("query served", zap.Int("top_k", req.TopK()), zap.Stringer("filter", pred), zap.Int("hits", len(scored)))
	} else {
		s.logger.Debug("query served", zap.Int("top_k", req.TopK()), zap.Int("hits", len(scored)))
	}

	return Response{Results: scored, Count: len(scored), Query: req.Query()}, nil
}

// Stats reports the collection name, its document count and where it lives.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	info := s.engine.Info()
	total, err := s.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Collection: info.Name, Total: total, Location: info.Location}, nil
}

// Count returns the number of stored documents.
func (s *Service) Count(ctx context.Context) (int, error) {
	col, err := s.engine.Collection(ctx)
	if err != nil {
		return 0, fmt.Errorf("open collection: %w", err)
	}
	n, err := col.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count collection: %w", err)
	}
	return n, nil
}

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, domain.ErrQueryRequired) || errors.Is(err, domain.ErrInvalidQuery)
}
