package health

import (
	"context"

	"github.com/retreivo/itemmatch/internal/domain/item"
)

// CachePinger checks extraction cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// ExtractorChecker checks descriptor extractor availability.
type ExtractorChecker interface {
	HealthCheck(ctx context.Context) error
}

// ItemCounter reports collection sizes.
type ItemCounter interface {
	Count(ctx context.Context, t item.ReportType) (int, error)
}
