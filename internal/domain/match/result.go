package match

import "github.com/retreivo/itemmatch/internal/domain/item"

// Candidate is one ranked stored item.
type Candidate struct {
	ID          string
	IDForm      item.IDForm
	Name        string
	Category    string
	Description string
	Location    string
	Date        string

	// Scores are integer percentages in [0,100].
	VisualScore    int
	MetadataScore  int
	CompositeScore int

	// Action is the recommendation for this candidate alone, set by Policy.NewResult.
	Action Action

	// Type is the report type of the stored item (opposite of the query type).
	Type item.ReportType

	seq uint64
}

// NewCandidate builds a candidate from a stored record and its scores.
func NewCandidate(rec *item.Record, visual, metadata, composite int) Candidate {
	meta := rec.Metadata()
	return Candidate{
		ID:             rec.ID(),
		IDForm:         rec.IDForm(),
		Name:           meta.Name,
		Category:       meta.Category,
		Description:    meta.Description,
		Location:       meta.Location,
		Date:           meta.Date,
		VisualScore:    visual,
		MetadataScore:  metadata,
		CompositeScore: composite,
		Type:           rec.Type(),
		seq:            rec.Seq(),
	}
}

// Seq returns the insertion sequence of the underlying record, used as the ranking tie-break.
func (c Candidate) Seq() uint64 { return c.seq }

// Result is the ranked outcome of a match query.
type Result struct {
	Candidates []Candidate
	Found      bool
	BestScore  int
	Action     Action
	Method     Method
}

// NewResult wraps ranked candidates (already sorted, filtered and truncated) into a Result.
func (p Policy) NewResult(candidates []Candidate, method Method) Result {
	if candidates == nil {
		candidates = []Candidate{}
	}
	best := 0
	if len(candidates) > 0 {
		best = candidates[0].CompositeScore
	}
	for i := range candidates {
		candidates[i].Action = p.Decide(candidates[i].CompositeScore, true)
	}
	return Result{
		Candidates: candidates,
		Found:      len(candidates) > 0,
		BestScore:  best,
		Action:     p.Decide(best, len(candidates) > 0),
		Method:     method,
	}
}

// Empty returns the zero-score reject result.
func (p Policy) Empty(method Method) Result {
	return p.NewResult(nil, method)
}

// FallbackCandidates returns the fixed placeholder candidates of the legacy demo service.
// They do not correspond to stored records; itemType labels them for display. Their ids are
// numeric, as the legacy service sent them.
func FallbackCandidates(itemType item.ReportType) []Candidate {
	return []Candidate{
		{
			ID: "101", IDForm: item.IDNumber, Name: "Leather wallet", Category: "Accessories",
			Description: "Found leather wallet near metro station", Location: "Metro station",
			CompositeScore: 92, Type: itemType,
		},
		{
			ID: "305", IDForm: item.IDNumber, Name: "iPhone 12", Category: "Electronics",
			Description: "Found black iPhone 12 at park bench", Location: "City park",
			CompositeScore: 87, Type: itemType,
		},
		{
			ID: "77", IDForm: item.IDNumber, Name: "Backpack", Category: "Bags",
			Description: "Found backpack with books in library", Location: "Library",
			CompositeScore: 81, Type: itemType,
		},
	}
}
