// Package similarity scores visual (descriptor) and textual (metadata) closeness of item reports.
// All scores are in [0,1].
package similarity

import (
	"sort"

	"github.com/retreivo/itemmatch/internal/domain/descriptor"
)

// Visual scores descriptor sets by cross-checked nearest-neighbour Hamming matching.
type Visual struct {
	normalization float64
	maxMatches    int
}

// NewVisual creates a visual scorer. normalization maps the average match distance onto [0,1];
// maxMatches caps how many of the closest matches are averaged.
func NewVisual(normalization float64, maxMatches int) Visual {
	return Visual{normalization: normalization, maxMatches: maxMatches}
}

// pair is an accepted cross-checked match.
type pair struct {
	query, ref int
	dist       int
}

// Similarity compares query against ref. Returns 0 when either set is empty, when descriptor
// lengths differ, or when no match survives the cross-check.
func (v Visual) Similarity(query, ref descriptor.Set) float64 {
	if query.IsEmpty() || ref.IsEmpty() || query.Size() != ref.Size() {
		return 0
	}

	matches := crossCheck(query, ref)
	if len(matches) == 0 {
		return 0
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].dist < matches[j].dist
	})
	if len(matches) > v.maxMatches {
		matches = matches[:v.maxMatches]
	}

	var sum int
	for _, m := range matches {
		sum += m.dist
	}
	avg := float64(sum) / float64(len(matches))

	sim := 1 - avg/v.normalization
	if sim < 0 {
		return 0
	}
	return sim
}

// crossCheck returns pairs (q, r) where r is q's nearest neighbour in ref and q is r's nearest
// neighbour in query. Ties resolve to the lowest index.
func crossCheck(query, ref descriptor.Set) []pair {
	nq, nr := query.Len(), ref.Len()

	dist := make([]int, nq*nr)
	bestRef := make([]int, nq)
	for i := range bestRef {
		bestRef[i] = -1
	}
	bestQuery := make([]int, nr)
	for j := range bestQuery {
		bestQuery[j] = -1
	}

	for i := 0; i < nq; i++ {
		qi := query.At(i)
		for j := 0; j < nr; j++ {
			d, ok := qi.Distance(ref.At(j))
			if !ok {
				d = -1
			}
			dist[i*nr+j] = d
			if d < 0 {
				continue
			}
			if bestRef[i] < 0 || d < dist[i*nr+bestRef[i]] {
				bestRef[i] = j
			}
			if bestQuery[j] < 0 || d < dist[bestQuery[j]*nr+j] {
				bestQuery[j] = i
			}
		}
	}

	var out []pair
	for i, j := range bestRef {
		if j >= 0 && bestQuery[j] == i {
			out = append(out, pair{query: i, ref: j, dist: dist[i*nr+j]})
		}
	}
	return out
}
