// Package explain turns scores and lot assignments into per-candidate
// justification records.
package explain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"IPOAllocator/internal/filter"
	"IPOAllocator/internal/model"
	"IPOAllocator/internal/optimizer"
	"IPOAllocator/internal/strategy"
)

// Thresholds are the 0..10 sub-score cut-offs behind the reason codes.
// Favorable reasons need a sub-score strictly above its threshold, caution
// reasons strictly below.
type Thresholds struct {
	StrongGMPStrength float64 `yaml:"strong_gmp_strength" json:"strong_gmp_strength"`
	HighRetailQuota   float64 `yaml:"high_retail_quota" json:"high_retail_quota"`
	SolidFundamentals float64 `yaml:"solid_fundamentals" json:"solid_fundamentals"`
	WeakFundamentals  float64 `yaml:"weak_fundamentals" json:"weak_fundamentals"`
	LowRetailQuota    float64 `yaml:"low_retail_quota" json:"low_retail_quota"`
}

// DefaultThresholds returns the production reason-code cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StrongGMPStrength: 8,
		HighRetailQuota:   7,
		SolidFundamentals: 6,
		WeakFundamentals:  4,
		LowRetailQuota:    3,
	}
}

// Validate checks every threshold is on the 0..10 scale and each weak/low
// cut-off sits at or below its strong/high partner.
func (t Thresholds) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"strong_gmp_strength", t.StrongGMPStrength},
		{"high_retail_quota", t.HighRetailQuota},
		{"solid_fundamentals", t.SolidFundamentals},
		{"weak_fundamentals", t.WeakFundamentals},
		{"low_retail_quota", t.LowRetailQuota},
	}
	for _, c := range checks {
		if c.v < 0 || c.v > 10 {
			return fmt.Errorf("explain threshold %s must be within 0..10, got %.2f", c.name, c.v)
		}
	}
	if t.WeakFundamentals > t.SolidFundamentals {
		return fmt.Errorf("weak_fundamentals (%.2f) must not exceed solid_fundamentals (%.2f)", t.WeakFundamentals, t.SolidFundamentals)
	}
	if t.LowRetailQuota > t.HighRetailQuota {
		return fmt.Errorf("low_retail_quota (%.2f) must not exceed high_retail_quota (%.2f)", t.LowRetailQuota, t.HighRetailQuota)
	}
	return nil
}

// Builder produces explanation records. It is stateless apart from its
// configuration and safe for concurrent use.
type Builder struct {
	scorer     *strategy.Scorer
	thresholds Thresholds
}

// NewBuilder returns a Builder; a nil scorer selects strategy.DefaultScorer.
func NewBuilder(scorer *strategy.Scorer, th Thresholds) *Builder {
	if scorer == nil {
		scorer = strategy.DefaultScorer()
	}
	return &Builder{scorer: scorer, thresholds: th}
}

// Build explains one run. sol.Lots is aligned with res.Eligible. The output
// lists allocated candidates first, then eligible but unfunded ones, then
// near-miss exclusions, each group in filter order.
func (b *Builder) Build(res filter.Result, sol optimizer.Solution) []model.Explanation {
	var allocated, unfunded, excluded []model.Explanation

	for i := range res.Eligible {
		c := &res.Eligible[i]
		lots := 0
		if i < len(sol.Lots) {
			lots = sol.Lots[i]
		}
		e := b.explain(c)
		e.Lots = lots
		e.Invested = c.MinInvest.Mul(decimal.NewFromInt(int64(lots)))
		if lots > 0 {
			e.Status = model.StatusAllocated
			allocated = append(allocated, e)
			continue
		}
		e.Status = model.StatusUnfunded
		e.Exclusion = []model.ReasonCode{model.ReasonNotFunded}
		unfunded = append(unfunded, e)
	}

	for _, ex := range res.NearMisses() {
		e := b.explain(&ex.Candidate)
		e.Status = model.StatusExcluded
		e.Exclusion = append([]model.ReasonCode(nil), ex.Reasons...)
		excluded = append(excluded, e)
	}

	out := make([]model.Explanation, 0, len(allocated)+len(unfunded)+len(excluded))
	out = append(out, allocated...)
	out = append(out, unfunded...)
	return append(out, excluded...)
}

// explain reconstructs the score contributions and threshold reasons of c.
func (b *Builder) explain(c *model.Candidate) model.Explanation {
	card := b.scorer.Evaluate(c)
	comps := card.Components
	th := b.thresholds

	e := model.Explanation{
		Name:              c.Name,
		Invested:          decimal.Zero,
		Composite:         card.Composite,
		Verdict:           card.Verdict,
		Contributions:     card.Factors,
		BaseContributions: card.BaseFactors,
	}

	if comps.GMPStrength > th.StrongGMPStrength {
		e.Favorable = append(e.Favorable, model.ReasonStrongGMP)
	}
	if comps.RetailQuota > th.HighRetailQuota {
		e.Favorable = append(e.Favorable, model.ReasonHighRetailQuota)
	}
	if comps.Fundamentals > th.SolidFundamentals {
		e.Favorable = append(e.Favorable, model.ReasonSolidFundamentals)
	}
	if card.Verdict == model.VerdictGood {
		e.Favorable = append(e.Favorable, model.ReasonGoodVerdict)
	}

	if comps.Fundamentals < th.WeakFundamentals {
		e.Caution = append(e.Caution, model.ReasonWeakFundamentals)
	}
	if comps.RetailQuota < th.LowRetailQuota {
		e.Caution = append(e.Caution, model.ReasonLowRetailQuota)
	}
	if c.IsSME() {
		e.Caution = append(e.Caution, model.ReasonSMECategory)
	}
	if comps.GMPPercent <= 0 {
		e.Caution = append(e.Caution, model.ReasonNonPositiveGMP)
	}
	return e
}
