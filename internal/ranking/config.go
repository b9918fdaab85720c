package ranking

import "fmt"

const (
	DefaultIdealLength = 500

	// term proximity is 1 at or below nearDistance characters and 0 at or beyond farDistance
	nearDistance = 50.0
	farDistance  = 500.0
)

// Weights combines the four rerank signals into one score.
type Weights struct {
	ExactPhrase  float64 `yaml:"exact_phrase" json:"exact_phrase"`   // default: 0.25
	TermCoverage float64 `yaml:"term_coverage" json:"term_coverage"` // default: 0.25
	Proximity    float64 `yaml:"proximity" json:"proximity"`         // default: 0.15
	Original     float64 `yaml:"original" json:"original"`           // default: 0.35, applied to original score × length penalty
}

// DefaultWeights returns the default signal weights.
func DefaultWeights() Weights {
	return Weights{
		ExactPhrase:  0.25,
		TermCoverage: 0.25,
		Proximity:    0.15,
		Original:     0.35,
	}
}

func (w Weights) sum() float64 {
	return w.ExactPhrase + w.TermCoverage + w.Proximity + w.Original
}

// IsZero reports whether no weight is set.
func (w Weights) IsZero() bool {
	return w == Weights{}
}

// Validate requires non-negative weights with a positive sum.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"exact_phrase":  w.ExactPhrase,
		"term_coverage": w.TermCoverage,
		"proximity":     w.Proximity,
		"original":      w.Original,
	} {
		if v < 0 {
			return fmt.Errorf("rerank weight %s must be non-negative, got %v", name, v)
		}
	}
	if w.sum() <= 0 {
		return fmt.Errorf("rerank weights must have a positive sum")
	}
	return nil
}

// Normalized scales the weights to sum to 1.
func (w Weights) Normalized() Weights {
	s := w.sum()
	if s <= 0 {
		return w
	}
	return Weights{
		ExactPhrase:  w.ExactPhrase / s,
		TermCoverage: w.TermCoverage / s,
		Proximity:    w.Proximity / s,
		Original:     w.Original / s,
	}
}

// Options controls a rerank call.
type Options struct {
	// TopK truncates the result; 0 keeps every candidate.
	TopK int `json:"top_k,omitempty"`
	// IdealLength is the document length, in characters, that gets no length penalty.
	IdealLength int `json:"ideal_length,omitempty"`
	// Weights left zero select DefaultWeights.
	Weights Weights `json:"weights,omitempty"`
}

// ApplyDefaults fills in zero values with defaults.
func (o *Options) ApplyDefaults(candidates int) {
	if o.TopK <= 0 || o.TopK > candidates {
		o.TopK = candidates
	}
	if o.IdealLength <= 0 {
		o.IdealLength = DefaultIdealLength
	}
	if o.Weights.IsZero() {
		o.Weights = DefaultWeights()
	}
}
