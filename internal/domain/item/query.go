package item

import "github.com/retreivo/itemmatch/internal/domain/descriptor"

// Query is a validated match request. The searched collection is always Type.Opposite().
type Query struct {
	Type        ReportType
	Descriptors descriptor.Set
	Metadata    Metadata
}

// Target returns the collection the query is matched against.
func (q Query) Target() ReportType { return q.Type.Opposite() }

// HasImage reports whether the query carries usable descriptors.
func (q Query) HasImage() bool { return !q.Descriptors.IsEmpty() }

// HasMetadata reports whether the query carries at least one scored field.
func (q Query) HasMetadata() bool { return !q.Metadata.IsEmpty() }

// IsEmpty reports whether the query carries neither image nor metadata.
func (q Query) IsEmpty() bool { return !q.HasImage() && !q.HasMetadata() }
