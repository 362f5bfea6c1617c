package ocr

import "strings"

// DefaultConfidenceThreshold is the minimum confidence for a token to be
// embedded.
const DefaultConfidenceThreshold = 65.0

// Filter drops tokens unfit for the invisible text layer.
type Filter struct {
	Threshold float64
}

// NewFilter returns a filter with the threshold clamped to 0..100.
func NewFilter(threshold float64) Filter {
	return Filter{Threshold: ClampThreshold(threshold)}
}

// Accept reports whether tok would be kept.
func (f Filter) Accept(tok WordToken) bool {
	if strings.TrimSpace(tok.Text) == "" {
		return false
	}
	return tok.Confidence >= f.Threshold
}

// Apply returns the accepted tokens in their original order.
// The input slice is not modified.
func (f Filter) Apply(tokens []WordToken) []WordToken {
	kept := make([]WordToken, 0, len(tokens))
	for _, tok := range tokens {
		if f.Accept(tok) {
			kept = append(kept, tok)
		}
	}
	return kept
}

// ClampThreshold bounds v to the 0..100 confidence scale.
func ClampThreshold(v float64) float64 {
	switch {
	case v != v: // NaN
		return DefaultConfidenceThreshold
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
