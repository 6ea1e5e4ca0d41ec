package similarity

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/retreivo/itemmatch/internal/domain/item"
)

// Text scores strings with a blend of whole-string, best-substring and token-order-invariant
// edit similarity.
type Text struct {
	ratioWeight     float64
	partialWeight   float64
	tokenSortWeight float64
}

// NewText creates a text scorer with the given metric weights.
func NewText(ratioWeight, partialWeight, tokenSortWeight float64) Text {
	return Text{
		ratioWeight:     ratioWeight,
		partialWeight:   partialWeight,
		tokenSortWeight: tokenSortWeight,
	}
}

// Similarity compares two strings case-insensitively. Empty or blank input yields 0.
func (t Text) Similarity(a, b string) float64 {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}

	// Caser is stateful, so one per call.
	fold := cases.Fold()
	ra := []rune(fold.String(a))
	rb := []rune(fold.String(b))

	score := t.ratioWeight*ratio(ra, rb) +
		t.partialWeight*partialRatio(ra, rb) +
		t.tokenSortWeight*ratio(tokenSort(ra), tokenSort(rb))
	return clamp01(score)
}

// Fields averages Similarity over name, category and description, skipping any field that is
// blank on either side. ok is false when no field pair was comparable.
func (t Text) Fields(query, stored item.Metadata) (score float64, ok bool) {
	pairs := [][2]string{
		{query.Name, stored.Name},
		{query.Category, stored.Category},
		{query.Description, stored.Description},
	}

	var sum float64
	var n int
	for _, p := range pairs {
		if strings.TrimSpace(p[0]) == "" || strings.TrimSpace(p[1]) == "" {
			continue
		}
		sum += t.Similarity(p[0], p[1])
		n++
	}
	if n == 0 {
		return 0, false
	}
	return clamp01(sum / float64(n)), true
}

// ratio is the indel-normalised similarity 2*LCS/(|a|+|b|).
func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	return float64(2*lcsLen(a, b)) / float64(total)
}

// lcsLen returns the length of the longest common subsequence.
func lcsLen(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// partialRatio is the best ratio of the shorter string against aligned windows of the longer.
// Equal-length inputs are scored in both directions so the result is symmetric.
func partialRatio(a, b []rune) float64 {
	switch {
	case len(a) < len(b):
		return bestWindow(a, b)
	case len(b) < len(a):
		return bestWindow(b, a)
	default:
		return max(bestWindow(a, b), bestWindow(b, a))
	}
}

// bestWindow slides short over long. Candidate windows start where some character of short
// lines up with an equal character of long; windows are clipped at the end of long.
func bestWindow(short, long []rune) float64 {
	if len(short) == 0 {
		return 0
	}

	positions := make(map[rune][]int, len(long))
	for j, r := range long {
		positions[r] = append(positions[r], j)
	}

	seen := make(map[int]struct{})
	best := 0.0
	for i, r := range short {
		for _, j := range positions[r] {
			start := max(j-i, 0)
			if _, ok := seen[start]; ok {
				continue
			}
			seen[start] = struct{}{}

			end := min(start+len(short), len(long))
			if s := ratio(short, long[start:end]); s > best {
				best = s
				if best == 1 {
					return 1
				}
			}
		}
	}
	return best
}

// tokenSort splits on anything that is not a letter or digit, sorts the tokens and rejoins
// them with single spaces. Input without any alphanumeric token is kept as one token.
func tokenSort(s []rune) []rune {
	tokens := strings.FieldsFunc(string(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return s
	}
	sort.Strings(tokens)
	return []rune(strings.Join(tokens, " "))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
