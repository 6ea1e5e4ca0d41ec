package health

import (
	"context"

	"github.com/retreivo/itemmatch/internal/domain/item"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a failing dependency; text matching still works.
	Degraded Status = "degraded"
	// Unhealthy indicates the item store itself is unusable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckDisabled indicates a component that is not configured.
	CheckDisabled CheckResult = "disabled"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	Items  map[item.ReportType]int
}

// Service coordinates health checks.
type Service struct {
	items     ItemCounter
	extractor ExtractorChecker
	cache     CachePinger
}

// New creates a Service. extractor and cache can be nil (reported as disabled).
func New(items ItemCounter, extractor ExtractorChecker, cache CachePinger) *Service {
	return &Service{items: items, extractor: extractor, cache: cache}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, 3)
	counts := make(map[item.ReportType]int, 2)

	checks["store"] = CheckOK
	for _, t := range []item.ReportType{item.Lost, item.Found} {
		n, err := s.items.Count(ctx, t)
		if err != nil {
			checks["store"] = CheckError
			continue
		}
		counts[t] = n
	}

	switch {
	case s.extractor == nil:
		checks["extractor"] = CheckDisabled
	case s.extractor.HealthCheck(ctx) != nil:
		checks["extractor"] = CheckError
	default:
		checks["extractor"] = CheckOK
	}

	switch {
	case s.cache == nil:
		checks["cache"] = CheckDisabled
	case s.cache.Ping(ctx) != nil:
		checks["cache"] = CheckError
	default:
		checks["cache"] = CheckOK
	}

	status := Healthy
	if checks["extractor"] == CheckError || checks["cache"] == CheckError {
		status = Degraded
	}
	if checks["store"] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks, Items: counts}
}
