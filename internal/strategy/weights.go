package strategy

import (
	"fmt"
	"math"
)

const weightSumTolerance = 0.001

// BaseWeights combine the 0..100 sub-scores into the base score.
type BaseWeights struct {
	GMP         float64 `yaml:"gmp" json:"gmp"`
	Price       float64 `yaml:"price" json:"price"`
	Size        float64 `yaml:"size" json:"size"`
	Expectation float64 `yaml:"expectation" json:"expectation"`
}

// CompositeWeights combine the 0..10 signals into the composite score.
type CompositeWeights struct {
	Base         float64 `yaml:"base" json:"base"`
	RetailQuota  float64 `yaml:"retail_quota" json:"retail_quota"`
	Fundamentals float64 `yaml:"fundamentals" json:"fundamentals"`
	GMPStrength  float64 `yaml:"gmp_strength" json:"gmp_strength"`
	Sentiment    float64 `yaml:"sentiment" json:"sentiment"`
}

// Weights is the full tunable weight set.
type Weights struct {
	Base      BaseWeights      `yaml:"base" json:"base"`
	Composite CompositeWeights `yaml:"composite" json:"composite"`
}

// DefaultWeights returns the production weight distribution.
func DefaultWeights() Weights {
	return Weights{
		Base: BaseWeights{
			GMP:         0.45,
			Price:       0.20,
			Size:        0.20,
			Expectation: 0.15,
		},
		Composite: CompositeWeights{
			Base:         0.30,
			RetailQuota:  0.25,
			Fundamentals: 0.20,
			GMPStrength:  0.15,
			Sentiment:    0.10,
		},
	}
}

// IsZero reports whether no weight has been set.
func (w Weights) IsZero() bool {
	return w == Weights{}
}

// Validate checks that each group is non-negative and sums to 1.0.
func (w Weights) Validate() error {
	base := []float64{w.Base.GMP, w.Base.Price, w.Base.Size, w.Base.Expectation}
	if err := checkGroup("base", base); err != nil {
		return err
	}
	composite := []float64{
		w.Composite.Base, w.Composite.RetailQuota, w.Composite.Fundamentals,
		w.Composite.GMPStrength, w.Composite.Sentiment,
	}
	return checkGroup("composite", composite)
}

func checkGroup(name string, ws []float64) error {
	sum := 0.0
	for _, v := range ws {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%s weights: negative or NaN weight %f", name, v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("%s weights sum to %.4f, must sum to 1.0", name, sum)
	}
	return nil
}

// VerdictBands are the lower composite bounds of the Good and Moderate verdicts.
type VerdictBands struct {
	Good     float64 `yaml:"good" json:"good"`
	Moderate float64 `yaml:"moderate" json:"moderate"`
}

// DefaultBands returns the production verdict thresholds.
func DefaultBands() VerdictBands {
	return VerdictBands{Good: 7.0, Moderate: 4.0}
}

// Validate checks the bands are ordered and on the 0..10 scale.
func (b VerdictBands) Validate() error {
	if b.Moderate < 0 || b.Good > 10 || b.Moderate > b.Good {
		return fmt.Errorf("verdict bands must satisfy 0 <= moderate (%.2f) <= good (%.2f) <= 10", b.Moderate, b.Good)
	}
	return nil
}
