package calculator

import (
	"math"

	"IPOAllocator/internal/model"
)

// SentimentScale says how upstream sentiment values are expressed.
type SentimentScale string

const (
	SentimentTen  SentimentScale = "ten"  // already 0..10, passed through
	SentimentUnit SentimentScale = "unit" // -1..+1, mapped onto 0..10
)

const (
	neutralSentiment    = 5.0
	neutralFundamentals = 5.0
)

// Components computes every sub-score of a candidate.
func Components(c *model.Candidate, scale SentimentScale) model.Components {
	pct := GMPPercent(c)
	return model.Components{
		GMPPercent:   pct,
		GMP:          GMPScore(pct),
		Price:        PriceScore(c.PriceBand.Average()),
		Size:         SizeScore(c.IssueSizeCr),
		Expectation:  ExpectationScore(pct),
		RetailQuota:  RetailQuotaScore(c.RetailQuota),
		Fundamentals: FundamentalsScore(c.Fundamentals),
		GMPStrength:  GMPStrength(pct),
		Sentiment:    SentimentScore(c.Sentiment, scale),
	}
}

// GMPPercent returns the grey-market premium as a percentage of the average issue price.
func GMPPercent(c *model.Candidate) float64 {
	if c.GMPUnit == model.GMPPercent {
		return c.GMP
	}
	price := c.PriceBand.Average()
	if price <= 0 {
		return 0
	}
	return c.GMP / price * 100
}

// GMPScore is the premium percentage clamped onto 0..100.
func GMPScore(gmpPct float64) float64 {
	return clamp(gmpPct, 0, 100)
}

// PriceScore favors cheaper issues.
func PriceScore(price float64) float64 {
	switch {
	case price < 100:
		return 90
	case price < 500:
		return 80
	case price < 1000:
		return 60
	default:
		return 40
	}
}

// SizeScore favors mid-to-large issues; size is in crore.
func SizeScore(issueSizeCr float64) float64 {
	switch {
	case issueSizeCr < 100:
		return 40
	case issueSizeCr < 500:
		return 70
	case issueSizeCr < 5000:
		return 90
	default:
		return 60
	}
}

// ExpectationScore maps the premium onto an expected-gain score centered at 50.
func ExpectationScore(gmpPct float64) float64 {
	return clamp(gmpPct/2+50, 0, 100)
}

// RetailQuotaScore maps the retail quota percentage onto 0..10.
func RetailQuotaScore(quotaPct float64) float64 {
	return clamp(quotaPct/10, 0, 10)
}

// FundamentalsScore starts from the neutral midpoint and adjusts for each known ratio.
// Unknown ratios leave the score untouched.
func FundamentalsScore(f model.Fundamentals) float64 {
	score := neutralFundamentals

	if f.ROE != nil {
		switch roe := *f.ROE; {
		case roe >= 20:
			score += 2
		case roe > 10:
			score += 1.5
		case roe < 0:
			score -= 1.5
		}
	}

	// Leverage is inverse-weighted: low debt helps, high debt hurts more.
	if f.DebtToEquity != nil {
		switch de := *f.DebtToEquity; {
		case de < 0.5:
			score += 1
		case de > 2:
			score -= 2
		case de > 1:
			score -= 1
		}
	}

	if f.EPS != nil {
		switch eps := *f.EPS; {
		case eps > 0:
			score += 1
		case eps < 0:
			score -= 1
		}
	}

	return clamp(score, 0, 10)
}

// GMPStrength is the premium percentage on a 0..10 scale (10% premium = 1.0).
func GMPStrength(gmpPct float64) float64 {
	return clamp(gmpPct/10, 0, 10)
}

// SentimentScore passes upstream sentiment through, defaulting to neutral.
func SentimentScore(s *float64, scale SentimentScale) float64 {
	if s == nil {
		return neutralSentiment
	}
	v := *s
	if scale == SentimentUnit {
		v = (clamp(v, -1, 1) + 1) * 5
	}
	return clamp(v, 0, 10)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
