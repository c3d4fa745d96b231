package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReasonCode is a machine-readable justification attached to an explanation.
type ReasonCode string

const (
	ReasonStrongGMP         ReasonCode = "strong_gmp"
	ReasonHighRetailQuota   ReasonCode = "high_retail_quota"
	ReasonSolidFundamentals ReasonCode = "solid_fundamentals"
	ReasonGoodVerdict       ReasonCode = "good_verdict"

	ReasonWeakFundamentals ReasonCode = "weak_fundamentals"
	ReasonLowRetailQuota   ReasonCode = "low_retail_quota"
	ReasonSMECategory      ReasonCode = "sme_category"
	ReasonNonPositiveGMP   ReasonCode = "non_positive_gmp"

	ReasonBelowThreshold ReasonCode = "below_score_threshold"
	ReasonAfterHoldUntil ReasonCode = "after_hold_until"
	ReasonNotFunded      ReasonCode = "not_funded"
)

// ExplanationStatus says which part of the run an explanation covers.
type ExplanationStatus string

const (
	StatusAllocated ExplanationStatus = "allocated"
	StatusUnfunded  ExplanationStatus = "unfunded"
	StatusExcluded  ExplanationStatus = "excluded"
)

// Explanation is the per-candidate justification record.
type Explanation struct {
	Name              string            `json:"name"`
	Status            ExplanationStatus `json:"status"`
	Lots              int               `json:"lots"`
	Invested          decimal.Decimal   `json:"invested"`
	Composite         float64           `json:"composite"`
	Verdict           Verdict           `json:"verdict"`
	Contributions     []FactorScore     `json:"contributions"`
	BaseContributions []FactorScore     `json:"base_contributions"`
	Favorable         []ReasonCode      `json:"favorable,omitempty"`
	Caution           []ReasonCode      `json:"caution,omitempty"`
	Exclusion         []ReasonCode      `json:"exclusion,omitempty"`
}

// Allocation is one funded line of a plan.
type Allocation struct {
	Name      string          `json:"name"`
	Category  Category        `json:"category"`
	Lots      int             `json:"lots"`
	MinInvest decimal.Decimal `json:"min_invest"`
	Invested  decimal.Decimal `json:"invested"`
	Composite float64         `json:"composite"`
	Verdict   Verdict         `json:"verdict"`
}

// AllocationPlan is the immutable result of one allocation run.
type AllocationPlan struct {
	ID                    string          `json:"id"`
	GeneratedAt           time.Time       `json:"generated_at"`
	Budget                decimal.Decimal `json:"budget"`
	HoldUntil             time.Time       `json:"hold_until"`
	MinScore              float64         `json:"min_score"`
	LotCap                int             `json:"lot_cap"`
	DiversificationWeight float64         `json:"diversification_weight"`
	Allocations           []Allocation    `json:"allocations"`
	TotalInvested         decimal.Decimal `json:"total_invested"`
	Leftover              decimal.Decimal `json:"leftover"`
	Objective             float64         `json:"objective"`
	Solver                string          `json:"solver"`
	Degraded              bool            `json:"degraded"`
	DegradeReason         string          `json:"degrade_reason,omitempty"`
	EligibleCount         int             `json:"eligible_count"`
	Explanations          []Explanation   `json:"explanations"`
}

// Utilization returns total invested as a percentage of the budget.
func (p *AllocationPlan) Utilization() float64 {
	if !p.Budget.IsPositive() {
		return 0
	}
	return p.TotalInvested.Div(p.Budget).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// Allocated looks up the lots given to a candidate by name.
func (p *AllocationPlan) Allocated(name string) int {
	for _, a := range p.Allocations {
		if a.Name == name {
			return a.Lots
		}
	}
	return 0
}
