package domain

import (
	"context"

	"github.com/retreivo/itemmatch/internal/domain/descriptor"
)

// Extractor turns raw image bytes into a descriptor set.
// Implementations return ErrNoFeatures or ErrExtractionFailed (possibly wrapped), never a partial set.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (descriptor.Set, error)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, image []byte) (descriptor.Set, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, image []byte) (descriptor.Set, error) {
	return f(ctx, image)
}

// DisabledExtractor is used when no extractor endpoint is configured.
// Every call fails with ErrExtractorUnavailable so matching degrades to metadata only.
type DisabledExtractor struct{}

// Extract always returns ErrExtractorUnavailable.
func (DisabledExtractor) Extract(_ context.Context, _ []byte) (descriptor.Set, error) {
	return descriptor.Set{}, ErrExtractorUnavailable
}
