package chi

import (
	"strings"
	"time"

	"github.com/retreivo/itemmatch/internal/domain/item"
	"github.com/retreivo/itemmatch/internal/domain/match"
)

// itemRequest is the body of every store and match route.
type itemRequest struct {
	ItemID      itemID `json:"item_id" validate:"max=128"`
	ItemType    string `json:"item_type" validate:"required"`
	ItemName    string `json:"item_name" validate:"max=512"`
	Category    string `json:"category" validate:"max=256"`
	Description string `json:"description" validate:"max=8192"`
	Location    string `json:"location" validate:"max=512"`
	Date        string `json:"date" validate:"max=64"`
	Image       string `json:"image"`
}

func (r *itemRequest) metadata() item.Metadata {
	return item.Metadata{
		Name:        strings.TrimSpace(r.ItemName),
		Category:    strings.TrimSpace(r.Category),
		Description: strings.TrimSpace(r.Description),
		Location:    strings.TrimSpace(r.Location),
		Date:        strings.TrimSpace(r.Date),
	}
}

type storeResponse struct {
	OK             bool   `json:"ok"`
	Stored         bool   `json:"stored"`
	ItemID         itemID `json:"item_id"`
	HasDescriptors bool   `json:"has_descriptors"`
}

type matchResultItem struct {
	ItemID             itemID `json:"item_id"`
	Name               string `json:"name"`
	Category           string `json:"category"`
	Description        string `json:"description"`
	Location           string `json:"location"`
	Date               string `json:"date"`
	MatchScore         int    `json:"match_score"`
	ImageSimilarity    int    `json:"image_similarity"`
	MetadataSimilarity int    `json:"metadata_similarity"`
	NextStep           string `json:"next_step"`
	Type               string `json:"type"`
}

type matchResponse struct {
	OK             bool              `json:"ok"`
	Results        []matchResultItem `json:"results"`
	MatchFound     bool              `json:"match_found"`
	BestMatchScore int               `json:"best_match_score"`
	NextStep       string            `json:"next_step"`
	SearchMethod   string            `json:"search_method"`
}

func matchResultToResponse(res *match.Result) matchResponse {
	items := make([]matchResultItem, len(res.Candidates))
	for i := range res.Candidates {
		c := &res.Candidates[i]
		items[i] = matchResultItem{
			ItemID:             newItemID(c.ID, c.IDForm),
			Name:               c.Name,
			Category:           c.Category,
			Description:        c.Description,
			Location:           c.Location,
			Date:               c.Date,
			MatchScore:         c.CompositeScore,
			ImageSimilarity:    c.VisualScore,
			MetadataSimilarity: c.MetadataScore,
			NextStep:           string(c.Action),
			Type:               string(c.Type),
		}
	}
	return matchResponse{
		OK:             true,
		Results:        items,
		MatchFound:     res.Found,
		BestMatchScore: res.BestScore,
		NextStep:       string(res.Action),
		SearchMethod:   string(res.Method),
	}
}

type listedItem struct {
	ItemID         itemID    `json:"item_id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	Date           string    `json:"date"`
	Type           string    `json:"type"`
	HasDescriptors bool      `json:"has_descriptors"`
	CreatedAt      time.Time `json:"created_at"`
}

type listResponse struct {
	OK    bool         `json:"ok"`
	Type  string       `json:"type"`
	Count int          `json:"count"`
	Items []listedItem `json:"items"`
}

func recordsToResponse(t item.ReportType, recs []item.Record) listResponse {
	items := make([]listedItem, len(recs))
	for i := range recs {
		rec := &recs[i]
		meta := rec.Metadata()
		items[i] = listedItem{
			ItemID:         newItemID(rec.ID(), rec.IDForm()),
			Name:           meta.Name,
			Category:       meta.Category,
			Description:    meta.Description,
			Location:       meta.Location,
			Date:           meta.Date,
			Type:           string(rec.Type()),
			HasDescriptors: rec.HasDescriptors(),
			CreatedAt:      rec.CreatedAt(),
		}
	}
	return listResponse{OK: true, Type: string(t), Count: len(items), Items: items}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Items   map[string]int    `json:"items"`
	Version string            `json:"version"`
}

type errorResponse struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
