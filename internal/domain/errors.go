package domain

import (
	"errors"
	"fmt"

	"github.com/retreivo/itemmatch/internal/domain/descriptor"
)

var (
	// ErrInvalidReportType signals a report type other than "lost" or "found".
	ErrInvalidReportType = errors.New("invalid report type")
	// ErrInvalidRequest signals a request body that failed validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmptyQuery signals a query carrying neither image nor metadata.
	ErrEmptyQuery = errors.New("empty query")

	// ErrExtractionFailed signals undecodable image bytes or an extractor failure.
	ErrExtractionFailed = errors.New("descriptor extraction failed")
	// ErrNoFeatures signals an image in which no visual features were found.
	ErrNoFeatures = errors.New("no visual features found")
	// ErrExtractorUnavailable signals an extractor that is not configured or is circuit-broken.
	ErrExtractorUnavailable = errors.New("descriptor extractor unavailable")
	// ErrMalformedDescriptors signals a descriptor payload that cannot be decoded.
	ErrMalformedDescriptors = descriptor.ErrMalformed
)

// ExtractorStatusError wraps ErrExtractionFailed with the HTTP status returned by the extractor.
type ExtractorStatusError struct {
	StatusCode int
}

func (e *ExtractorStatusError) Error() string {
	return fmt.Sprintf("%s: extractor returned status %d", ErrExtractionFailed.Error(), e.StatusCode)
}

func (e *ExtractorStatusError) Unwrap() error { return ErrExtractionFailed }

// NewExtractorStatusError creates an extractor status error.
func NewExtractorStatusError(statusCode int) error {
	return &ExtractorStatusError{StatusCode: statusCode}
}
