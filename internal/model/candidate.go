package model

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category tags the listing segment of an offering.
type Category string

const (
	CategoryMainboard Category = "mainboard"
	CategorySME       Category = "sme"
)

// GMPUnit says how Candidate.GMP is expressed.
type GMPUnit string

const (
	GMPAbsolute GMPUnit = "absolute" // premium per share, same currency as the price band
	GMPPercent  GMPUnit = "percent"
)

// PriceBand is the issue price range.
type PriceBand struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg,omitempty"`
}

// Average returns Avg when set, otherwise the band midpoint.
func (p PriceBand) Average() float64 {
	if p.Avg > 0 {
		return p.Avg
	}
	return (p.Min + p.Max) / 2
}

// Fundamentals holds optional valuation ratios. Nil means unknown.
type Fundamentals struct {
	ROE          *float64 `json:"roe,omitempty"`
	DebtToEquity *float64 `json:"debt_to_equity,omitempty"`
	EPS          *float64 `json:"eps,omitempty"`
}

// Candidate is one IPO offering taken from an upstream snapshot.
// BaseScore, Composite and Verdict are derived by the strategy scorer.
type Candidate struct {
	Name         string          `json:"name"`
	Category     Category        `json:"category"`
	PriceBand    PriceBand       `json:"price_band"`
	IssueSizeCr  float64         `json:"issue_size_cr"`
	GMP          float64         `json:"gmp"`
	GMPUnit      GMPUnit         `json:"gmp_unit,omitempty"`
	CloseDate    time.Time       `json:"close_date"`
	MinInvest    decimal.Decimal `json:"min_invest"`
	RetailQuota  float64         `json:"retail_quota_pct"`
	Fundamentals Fundamentals    `json:"fundamentals"`
	Sentiment    *float64        `json:"sentiment,omitempty"`

	BaseScore float64 `json:"base_score"`
	Composite float64 `json:"composite"`
	Verdict   Verdict `json:"verdict"`
}

// IsSME reports whether the candidate trades on the SME segment.
func (c *Candidate) IsSME() bool {
	return strings.EqualFold(string(c.Category), string(CategorySME))
}

// Validate rejects malformed candidates. Nothing is coerced.
func (c *Candidate) Validate() error {
	name := strings.TrimSpace(c.Name)
	subject := "candidate " + name
	if name == "" {
		return invalid("candidate", "name", "is required")
	}
	p := c.PriceBand
	switch {
	case !finite(p.Min) || !finite(p.Max) || !finite(p.Avg):
		return invalid(subject, "price_band", "must be finite")
	case p.Min <= 0 || p.Max <= 0:
		return invalid(subject, "price_band", "must be positive")
	case p.Min > p.Max:
		return invalid(subject, "price_band", "min exceeds max")
	case p.Avg < 0:
		return invalid(subject, "price_band.avg", "must not be negative")
	}
	if !finite(c.IssueSizeCr) || c.IssueSizeCr <= 0 {
		return invalid(subject, "issue_size_cr", "must be positive")
	}
	if !finite(c.GMP) {
		return invalid(subject, "gmp", "must be finite")
	}
	switch c.GMPUnit {
	case "", GMPAbsolute, GMPPercent:
	default:
		return invalid(subject, "gmp_unit", "unknown unit "+string(c.GMPUnit))
	}
	if c.CloseDate.IsZero() {
		return invalid(subject, "close_date", "is required")
	}
	if !c.MinInvest.IsPositive() {
		return invalid(subject, "min_invest", "must be positive")
	}
	if !finite(c.RetailQuota) || c.RetailQuota < 0 || c.RetailQuota > 100 {
		return invalid(subject, "retail_quota_pct", "must be within 0..100")
	}
	optional := []struct {
		field string
		v     *float64
	}{
		{"fundamentals.roe", c.Fundamentals.ROE},
		{"fundamentals.debt_to_equity", c.Fundamentals.DebtToEquity},
		{"fundamentals.eps", c.Fundamentals.EPS},
		{"sentiment", c.Sentiment},
	}
	for _, o := range optional {
		if o.v != nil && !finite(*o.v) {
			return invalid(subject, o.field, "must be finite")
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
