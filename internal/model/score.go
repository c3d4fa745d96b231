package model

// Verdict is the band a composite score falls into.
type Verdict string

const (
	VerdictGood     Verdict = "Good"
	VerdictModerate Verdict = "Moderate"
	VerdictSkip     Verdict = "Skip"
)

// FactorScore represents a single weighted term of a score.
type FactorScore struct {
	Name       string  `json:"name"`
	RawScore   float64 `json:"raw_score"`
	Weight     float64 `json:"weight"`
	Weighted   float64 `json:"weighted"`
	Commentary string  `json:"commentary,omitempty"`
}

// Components are the normalized sub-scores of one candidate.
// GMP, Price, Size and Expectation are on a 0..100 scale; the rest on 0..10.
type Components struct {
	GMPPercent   float64 `json:"gmp_percent"`
	GMP          float64 `json:"gmp"`
	Price        float64 `json:"price"`
	Size         float64 `json:"size"`
	Expectation  float64 `json:"expectation"`
	RetailQuota  float64 `json:"retail_quota"`
	Fundamentals float64 `json:"fundamentals"`
	GMPStrength  float64 `json:"gmp_strength"`
	Sentiment    float64 `json:"sentiment"`
}

// ScoreCard is the full scoring result for one candidate.
type ScoreCard struct {
	Components  Components    `json:"components"`
	BaseFactors []FactorScore `json:"base_factors"`
	Factors     []FactorScore `json:"factors"`
	BaseScore   float64       `json:"base_score"`
	Composite   float64       `json:"composite"`
	Verdict     Verdict       `json:"verdict"`
}
