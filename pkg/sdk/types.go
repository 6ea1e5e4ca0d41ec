package itemmatch

import "time"

// ReportType tells whether a report describes a lost or a found item.
type ReportType string

// Report types.
const (
	Lost  ReportType = "lost"
	Found ReportType = "found"
)

// Item is a report to store. Image holds raw image bytes and may be empty.
type Item struct {
	ID          string // generated when empty
	Type        ReportType
	Name        string
	Category    string
	Description string
	Location    string
	Date        string
	Image       []byte
}

// Query describes a lost or found report to match against the opposite collection.
type Query struct {
	Type        ReportType
	Name        string
	Category    string
	Description string
	Location    string
	Date        string
	Image       []byte
}

// StoreResult reports a stored item.
type StoreResult struct {
	ID             string
	HasDescriptors bool
}

// Match is one ranked candidate. Scores are integer percentages.
type Match struct {
	ItemID             string
	Name               string
	Category           string
	Description        string
	Location           string
	Date               string
	Score              int
	ImageSimilarity    int
	MetadataSimilarity int
	NextStep           string // recommendation for this candidate alone
	Type               ReportType
}

// Result is the outcome of a match query.
type Result struct {
	Matches   []Match
	Found     bool
	BestScore int
	NextStep  string // "approve_online", "request_verification" or "reject"
	Method    string // "image_matching", "text_matching" or "fallback"
}

// StoredItem is a report as kept by the engine.
type StoredItem struct {
	ID             string
	Type           ReportType
	Name           string
	Category       string
	Description    string
	Location       string
	Date           string
	HasDescriptors bool
	CreatedAt      time.Time
}

// HealthStatus represents the aggregated engine health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component -> "ok"/"error"/"disabled"
	Items  map[ReportType]int
}
