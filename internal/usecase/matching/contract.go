package matching

import (
	"context"

	"github.com/retreivo/itemmatch/internal/domain/descriptor"
	"github.com/retreivo/itemmatch/internal/domain/item"
)

// Repository is the item store contract.
type Repository interface {
	Insert(ctx context.Context, rec item.Record) (item.Record, error)
	All(ctx context.Context, t item.ReportType) ([]item.Record, error)
}

// Extractor turns raw image bytes into descriptors.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (descriptor.Set, error)
}
