package strategy

import (
	"fmt"
	"strings"

	"IPOAllocator/internal/model"
)

// baseFactors builds the four base-score terms. Sub-scores are on 0..100,
// so every weighted term is divided by 10 to land the base score on 0..10.
func baseFactors(c *model.Candidate, comps model.Components, w BaseWeights) []model.FactorScore {
	return []model.FactorScore{
		baseTerm("gmp", comps.GMP, w.GMP, fmt.Sprintf("GMP %+.1f%%", comps.GMPPercent)),
		baseTerm("price", comps.Price, w.Price, fmt.Sprintf("avg price %.2f", c.PriceBand.Average())),
		baseTerm("size", comps.Size, w.Size, fmt.Sprintf("issue %.0fcr", c.IssueSizeCr)),
		baseTerm("expectation", comps.Expectation, w.Expectation, fmt.Sprintf("expected gain %.0f/100", comps.Expectation)),
	}
}

func baseTerm(name string, raw, weight float64, commentary string) model.FactorScore {
	return model.FactorScore{
		Name:       name,
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight / 10,
		Commentary: commentary,
	}
}

// compositeFactors builds the five composite terms; all inputs are on 0..10.
func compositeFactors(c *model.Candidate, base float64, comps model.Components, w CompositeWeights) []model.FactorScore {
	return []model.FactorScore{
		term("base_score", base, w.Base, fmt.Sprintf("base %.2f", base)),
		term("retail_quota", comps.RetailQuota, w.RetailQuota, fmt.Sprintf("retail quota %.1f%%", c.RetailQuota)),
		term("fundamentals", comps.Fundamentals, w.Fundamentals, fundamentalsCommentary(c.Fundamentals)),
		term("gmp_strength", comps.GMPStrength, w.GMPStrength, fmt.Sprintf("GMP strength %.2f", comps.GMPStrength)),
		term("sentiment", comps.Sentiment, w.Sentiment, fmt.Sprintf("sentiment %.1f", comps.Sentiment)),
	}
}

func term(name string, raw, weight float64, commentary string) model.FactorScore {
	return model.FactorScore{
		Name:       name,
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: commentary,
	}
}

func fundamentalsCommentary(f model.Fundamentals) string {
	if f.ROE == nil && f.DebtToEquity == nil && f.EPS == nil {
		return "fundamentals unknown"
	}
	var parts []string
	if f.ROE != nil {
		parts = append(parts, fmt.Sprintf("ROE %.1f", *f.ROE))
	}
	if f.DebtToEquity != nil {
		parts = append(parts, fmt.Sprintf("D/E %.2f", *f.DebtToEquity))
	}
	if f.EPS != nil {
		parts = append(parts, fmt.Sprintf("EPS %.2f", *f.EPS))
	}
	return strings.Join(parts, " ")
}
