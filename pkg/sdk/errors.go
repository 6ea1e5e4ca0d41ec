package itemmatch

import "github.com/retreivo/itemmatch/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidReportType = domain.ErrInvalidReportType
)
