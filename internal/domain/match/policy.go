package match

import "fmt"

// Default policy constants.
const (
	// DefaultDistanceNormalization maps an average Hamming distance onto [0,1].
	DefaultDistanceNormalization = 100.0
	// DefaultMaxVisualMatches caps the cross-checked matches averaged per comparison.
	DefaultMaxVisualMatches = 30

	DefaultVisualWeight   = 0.7
	DefaultMetadataWeight = 0.3

	DefaultRatioWeight     = 0.3
	DefaultPartialWeight   = 0.4
	DefaultTokenSortWeight = 0.3

	// DefaultInclusionThreshold is exclusive: only scores strictly above it are ranked.
	DefaultInclusionThreshold = 50
	DefaultApproveThreshold   = 80
	DefaultVerifyThreshold    = 50
	DefaultTopK               = 5
)

// Policy holds the numeric constants of the matching engine.
type Policy struct {
	DistanceNormalization float64
	MaxVisualMatches      int

	VisualWeight   float64
	MetadataWeight float64

	RatioWeight     float64
	PartialWeight   float64
	TokenSortWeight float64

	InclusionThreshold int
	ApproveThreshold   int
	VerifyThreshold    int
	TopK               int

	// FallbackEnabled substitutes the legacy placeholder candidates when nothing matches.
	FallbackEnabled bool
}

// DefaultPolicy returns the reference policy with fallback disabled.
func DefaultPolicy() Policy {
	return Policy{
		DistanceNormalization: DefaultDistanceNormalization,
		MaxVisualMatches:      DefaultMaxVisualMatches,
		VisualWeight:          DefaultVisualWeight,
		MetadataWeight:        DefaultMetadataWeight,
		RatioWeight:           DefaultRatioWeight,
		PartialWeight:         DefaultPartialWeight,
		TokenSortWeight:       DefaultTokenSortWeight,
		InclusionThreshold:    DefaultInclusionThreshold,
		ApproveThreshold:      DefaultApproveThreshold,
		VerifyThreshold:       DefaultVerifyThreshold,
		TopK:                  DefaultTopK,
	}
}

// Validate checks the policy for internal consistency.
func (p Policy) Validate() error {
	if p.DistanceNormalization <= 0 {
		return fmt.Errorf("distance normalization must be positive, got %v", p.DistanceNormalization)
	}
	if p.MaxVisualMatches <= 0 {
		return fmt.Errorf("max visual matches must be positive, got %d", p.MaxVisualMatches)
	}
	for name, w := range map[string]float64{
		"visual weight": p.VisualWeight, "metadata weight": p.MetadataWeight,
		"ratio weight": p.RatioWeight, "partial weight": p.PartialWeight,
		"token sort weight": p.TokenSortWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, w)
		}
	}
	if s := p.VisualWeight + p.MetadataWeight; s > 1+1e-9 {
		return fmt.Errorf("visual and metadata weights sum to %v, must not exceed 1", s)
	}
	if s := p.RatioWeight + p.PartialWeight + p.TokenSortWeight; s > 1+1e-9 {
		return fmt.Errorf("text metric weights sum to %v, must not exceed 1", s)
	}
	if p.InclusionThreshold < 0 || p.InclusionThreshold > 100 {
		return fmt.Errorf("inclusion threshold must be in [0,100], got %d", p.InclusionThreshold)
	}
	if p.VerifyThreshold < 0 || p.ApproveThreshold > 100 || p.VerifyThreshold > p.ApproveThreshold {
		return fmt.Errorf("decision thresholds must satisfy 0 <= verify (%d) <= approve (%d) <= 100",
			p.VerifyThreshold, p.ApproveThreshold)
	}
	if p.TopK <= 0 {
		return fmt.Errorf("top k must be positive, got %d", p.TopK)
	}
	return nil
}
