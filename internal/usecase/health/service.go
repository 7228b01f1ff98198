package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the store works but something else does not.
	Degraded Status = "degraded"
	// Unhealthy indicates the store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status  Status
	Entries int
	Checks  map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	counter   Counter
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil.
func New(store StorePinger, counter Counter, embedding EmbeddingChecker) *Service {
	return &Service{store: store, counter: counter, embedding: embedding}
}

// Check runs health checks against all components. The collection is only
// counted when the store answers.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	var entries int

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = CheckError
	} else {
		checks["store"] = CheckOK

		n, err := s.counter.Count(ctx)
		if err != nil {
			checks["collection"] = CheckError
		} else {
			checks["collection"] = CheckOK
			entries = n
		}
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	status := Healthy
	switch {
	case checks["store"] == CheckError:
		status = Unhealthy
	default:
		for _, v := range checks {
			if v == CheckError {
				status = Degraded
				break
			}
		}
	}

	return Report{Status: status, Entries: entries, Checks: checks}
}
