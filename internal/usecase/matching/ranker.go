package matching

import (
	"math"
	"sort"

	"github.com/retreivo/itemmatch/internal/domain/descriptor"
	"github.com/retreivo/itemmatch/internal/domain/item"
	"github.com/retreivo/itemmatch/internal/domain/match"
	"github.com/retreivo/itemmatch/internal/similarity"
)

// percentEpsilon keeps products like 0.7*1 + 0.3*1 from truncating to 99.
const percentEpsilon = 1e-9

// ranker fuses visual and metadata similarity into composite scores and ranks candidates.
type ranker struct {
	policy match.Policy
	visual similarity.Visual
	text   similarity.Text
}

func newRanker(p match.Policy) ranker {
	return ranker{
		policy: p,
		visual: similarity.NewVisual(p.DistanceNormalization, p.MaxVisualMatches),
		text:   similarity.NewText(p.RatioWeight, p.PartialWeight, p.TokenSortWeight),
	}
}

// malformedFunc is called for each stored record whose descriptors cannot be decoded.
type malformedFunc func(rec *item.Record, err error)

// rank scores every record, keeps those strictly above the inclusion threshold, sorts them by
// composite score (ties by insertion order) and truncates to TopK.
func (r ranker) rank(q item.Query, records []item.Record, onMalformed malformedFunc) []match.Candidate {
	var pool []match.Candidate

	for i := range records {
		rec := &records[i]

		var stored descriptor.Set
		if q.HasImage() && rec.HasDescriptors() {
			var err error
			stored, err = descriptor.Decode(rec.Descriptors())
			if err != nil {
				if onMalformed != nil {
					onMalformed(rec, err)
				}
				continue
			}
		}

		c := r.score(q, rec, stored)
		if c.CompositeScore > r.policy.InclusionThreshold {
			pool = append(pool, c)
		}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].CompositeScore != pool[j].CompositeScore {
			return pool[i].CompositeScore > pool[j].CompositeScore
		}
		return pool[i].Seq() < pool[j].Seq()
	})

	if len(pool) > r.policy.TopK {
		pool = pool[:r.policy.TopK]
	}
	return pool
}

// score computes the candidate for one record. stored holds the record's decoded descriptors
// (empty when the record or the query has none).
func (r ranker) score(q item.Query, rec *item.Record, stored descriptor.Set) match.Candidate {
	hasVisual := q.HasImage() && !stored.IsEmpty()
	var visual float64
	if hasVisual {
		visual = r.visual.Similarity(q.Descriptors, stored)
	}

	metadata, hasMetadata := r.text.Fields(q.Metadata, rec.Metadata())

	return match.NewCandidate(rec,
		percent(visual),
		percent(metadata),
		r.composite(visual, hasVisual, metadata, hasMetadata),
	)
}

// composite fuses the available modalities into an integer percentage.
func (r ranker) composite(visual float64, hasVisual bool, metadata float64, hasMetadata bool) int {
	var score float64
	switch {
	case hasVisual && hasMetadata:
		score = r.policy.VisualWeight*visual + r.policy.MetadataWeight*metadata
	case hasVisual:
		score = visual
	case hasMetadata:
		score = metadata
	}
	return percent(score)
}

// percent converts a [0,1] score into an integer percentage in [0,100], truncating.
func percent(v float64) int {
	p := int(math.Floor(v*100 + percentEpsilon))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
