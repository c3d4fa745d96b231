package collector

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"IPOAllocator/internal/model"
)

// Snapshot is the wire envelope the extraction side publishes.
type Snapshot struct {
	GeneratedAt time.Time `json:"generated_at"`
	Source      string    `json:"source,omitempty"`
	Records     []Record  `json:"candidates"`
}

// Record is one candidate as published upstream. Optional numbers are
// pointers so that "missing" stays distinguishable from zero.
type Record struct {
	Name         string              `json:"name"`
	Category     string              `json:"category"`
	PriceMin     float64             `json:"price_min"`
	PriceMax     float64             `json:"price_max"`
	PriceAvg     float64             `json:"price_avg,omitempty"`
	IssueSizeCr  float64             `json:"issue_size_cr"`
	GMP          float64             `json:"gmp"`
	GMPUnit      string              `json:"gmp_unit,omitempty"`
	CloseDate    string              `json:"close_date"`
	MinInvest    decimal.NullDecimal `json:"min_invest"`
	LotSize      int64               `json:"lot_size,omitempty"`
	RetailQuota  *float64            `json:"retail_quota_pct"`
	ROE          *float64            `json:"roe,omitempty"`
	DebtToEquity *float64            `json:"debt_to_equity,omitempty"`
	EPS          *float64            `json:"eps,omitempty"`
	Sentiment    *float64            `json:"sentiment,omitempty"`
}

// dateLayouts are tried in order when parsing close dates.
var dateLayouts = []string{
	"2006-01-02",
	"02-Jan-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02/01/2006",
	time.RFC3339,
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Candidate converts the record and validates the result.
// A missing min_invest is derived from lot_size × average price; a record
// with neither is rejected, as is one without a retail quota.
func (r Record) Candidate() (model.Candidate, error) {
	subject := "candidate " + strings.TrimSpace(r.Name)
	reject := func(field, reason string) (model.Candidate, error) {
		return model.Candidate{}, &model.ValidationError{Subject: subject, Field: field, Reason: reason}
	}

	closeDate, ok := parseDate(r.CloseDate)
	if !ok {
		return reject("close_date", "unparseable date "+strings.TrimSpace(r.CloseDate))
	}
	if r.RetailQuota == nil {
		return reject("retail_quota_pct", "is required")
	}

	band := model.PriceBand{Min: r.PriceMin, Max: r.PriceMax, Avg: r.PriceAvg}
	minInvest := r.MinInvest.Decimal
	if !r.MinInvest.Valid {
		if r.LotSize <= 0 {
			return reject("min_invest", "is required when lot_size is missing")
		}
		minInvest = decimal.NewFromFloat(band.Average()).Mul(decimal.NewFromInt(r.LotSize)).Round(2)
	}

	category := model.Category(strings.ToLower(strings.TrimSpace(r.Category)))
	if category == "" {
		category = model.CategoryMainboard
	}
	unit := model.GMPUnit(strings.ToLower(strings.TrimSpace(r.GMPUnit)))
	if unit == "" {
		unit = model.GMPAbsolute
	}

	c := model.Candidate{
		Name:        strings.TrimSpace(r.Name),
		Category:    category,
		PriceBand:   band,
		IssueSizeCr: r.IssueSizeCr,
		GMP:         r.GMP,
		GMPUnit:     unit,
		CloseDate:   closeDate,
		MinInvest:   minInvest,
		RetailQuota: *r.RetailQuota,
		Fundamentals: model.Fundamentals{
			ROE:          r.ROE,
			DebtToEquity: r.DebtToEquity,
			EPS:          r.EPS,
		},
		Sentiment: r.Sentiment,
	}
	if err := c.Validate(); err != nil {
		return model.Candidate{}, err
	}
	return c, nil
}
