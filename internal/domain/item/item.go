package item

import (
	"fmt"
	"strings"
	"time"
)

// ReportType tells whether a report describes a lost or a found item.
type ReportType string

// Report types.
const (
	Lost  ReportType = "lost"
	Found ReportType = "found"
)

// ParseReportType normalizes and validates a report type.
func ParseReportType(s string) (ReportType, error) {
	t := ReportType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("report type must be %q or %q, got %q", Lost, Found, s)
	}
	return t, nil
}

// IsValid checks if the type is one of the supported values.
func (t ReportType) IsValid() bool {
	return t == Lost || t == Found
}

// Opposite returns the collection a report of this type is matched against.
func (t ReportType) Opposite() ReportType {
	if t == Lost {
		return Found
	}
	return Lost
}

// Metadata holds the descriptive fields of a report.
// Name, Category and Description are scored; Location and Date are carried for display.
type Metadata struct {
	Name        string
	Category    string
	Description string
	Location    string
	Date        string
}

// IsEmpty reports whether none of the scored fields carry text.
func (m Metadata) IsEmpty() bool {
	return strings.TrimSpace(m.Name) == "" &&
		strings.TrimSpace(m.Category) == "" &&
		strings.TrimSpace(m.Description) == ""
}

// IDForm tells whether the caller supplied an item id as text or as a number.
// Responses echo ids back in the same form.
type IDForm uint8

// ID forms.
const (
	IDText IDForm = iota
	IDNumber
)

// Record is a stored item report (immutable value object).
type Record struct {
	id          string
	idForm      IDForm
	reportType  ReportType
	meta        Metadata
	descriptors []byte
	createdAt   time.Time
	seq         uint64
}

// New creates a Record. descriptors is an encoded descriptor payload (may be nil) and is copied.
func New(id string, t ReportType, meta Metadata, descriptors []byte, createdAt time.Time) Record {
	var payload []byte
	if len(descriptors) > 0 {
		payload = make([]byte, len(descriptors))
		copy(payload, descriptors)
	}
	return Record{
		id:          id,
		reportType:  t,
		meta:        meta,
		descriptors: payload,
		createdAt:   createdAt,
	}
}

// ID returns the caller-supplied identity token.
func (r *Record) ID() string { return r.id }

// IDForm returns the form the id was supplied in.
func (r *Record) IDForm() IDForm { return r.idForm }

// Type returns the report type.
func (r *Record) Type() ReportType { return r.reportType }

// Metadata returns the descriptive fields.
func (r *Record) Metadata() Metadata { return r.meta }

// Descriptors returns the encoded descriptor payload. Callers must not modify the slice.
func (r *Record) Descriptors() []byte { return r.descriptors }

// HasDescriptors reports whether the record carries a descriptor payload.
func (r *Record) HasDescriptors() bool { return len(r.descriptors) > 0 }

// CreatedAt returns the creation timestamp.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// Seq returns the insertion sequence number assigned by the store (1-based).
func (r *Record) Seq() uint64 { return r.seq }

// WithSeq returns a copy carrying the given insertion sequence number.
func (r *Record) WithSeq(seq uint64) Record {
	cp := *r
	cp.seq = seq
	return cp
}

// WithIDForm returns a copy whose id is marked as supplied in form f.
func (r *Record) WithIDForm(f IDForm) Record {
	cp := *r
	cp.idForm = f
	return cp
}
