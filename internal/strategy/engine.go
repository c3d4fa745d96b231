package strategy

import (
	"fmt"
	"math"

	"IPOAllocator/internal/calculator"
	"IPOAllocator/internal/model"
)

// Scorer turns candidate attributes into base score, composite score and verdict.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	weights   Weights
	bands     VerdictBands
	sentiment calculator.SentimentScale
}

// NewScorer validates the weights and bands and returns a Scorer.
func NewScorer(w Weights, b VerdictBands, scale calculator.SentimentScale) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if scale == "" {
		scale = calculator.SentimentTen
	}
	return &Scorer{weights: w, bands: b, sentiment: scale}, nil
}

// DefaultScorer uses the production weights and bands.
func DefaultScorer() *Scorer {
	return &Scorer{weights: DefaultWeights(), bands: DefaultBands(), sentiment: calculator.SentimentTen}
}

// Weights returns the weights in use.
func (s *Scorer) Weights() Weights { return s.weights }

// Evaluate computes the full score card for a candidate.
func (s *Scorer) Evaluate(c *model.Candidate) model.ScoreCard {
	comps := calculator.Components(c, s.sentiment)

	base := baseFactors(c, comps, s.weights.Base)
	baseScore := 0.0
	for _, f := range base {
		baseScore += f.Weighted
	}

	factors := compositeFactors(c, baseScore, comps, s.weights.Composite)
	raw := 0.0
	for _, f := range factors {
		raw += f.Weighted
	}
	composite := round3(math.Max(0, math.Min(10, raw)))

	return model.ScoreCard{
		Components:  comps,
		BaseFactors: base,
		Factors:     factors,
		BaseScore:   baseScore,
		Composite:   composite,
		Verdict:     MapVerdict(composite, s.bands),
	}
}

// Apply returns a copy of c with BaseScore, Composite and Verdict filled in.
func (s *Scorer) Apply(c model.Candidate) model.Candidate {
	card := s.Evaluate(&c)
	c.BaseScore = card.BaseScore
	c.Composite = card.Composite
	c.Verdict = card.Verdict
	return c
}

// MapVerdict maps a composite score to its verdict band.
func MapVerdict(composite float64, b VerdictBands) model.Verdict {
	bands := []struct {
		min     float64
		verdict model.Verdict
	}{
		{b.Good, model.VerdictGood},
		{b.Moderate, model.VerdictModerate},
	}
	for _, band := range bands {
		if composite >= band.min {
			return band.verdict
		}
	}
	return model.VerdictSkip
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
