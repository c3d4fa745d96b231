package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultMinScore              = 5.0
	DefaultLotCap                = 3
	DefaultDiversificationWeight = 0.10
	DefaultTopFillK              = 3
)

// AllocationRequest is one allocation run's parameters.
type AllocationRequest struct {
	Budget                decimal.Decimal `json:"budget"`
	HoldUntil             time.Time       `json:"hold_until"`
	MinScore              float64         `json:"min_score"`
	LotCap                int             `json:"lot_cap"`
	DiversificationWeight float64         `json:"diversification_weight"`
	TopFillK              int             `json:"top_fill_k"`
}

// NewAllocationRequest returns a request with default threshold, cap and weights.
func NewAllocationRequest(budget decimal.Decimal, holdUntil time.Time) AllocationRequest {
	return AllocationRequest{
		Budget:                budget,
		HoldUntil:             holdUntil,
		MinScore:              DefaultMinScore,
		LotCap:                DefaultLotCap,
		DiversificationWeight: DefaultDiversificationWeight,
		TopFillK:              DefaultTopFillK,
	}
}

// Validate rejects malformed requests.
func (r *AllocationRequest) Validate() error {
	const subject = "request"
	if !r.Budget.IsPositive() {
		return invalid(subject, "budget", "must be positive")
	}
	if r.HoldUntil.IsZero() {
		return invalid(subject, "hold_until", "is required")
	}
	if math.IsNaN(r.MinScore) || math.IsInf(r.MinScore, 0) {
		return invalid(subject, "min_score", "must be finite")
	}
	if r.LotCap <= 0 {
		return invalid(subject, "lot_cap", "must be positive")
	}
	if !finite(r.DiversificationWeight) || r.DiversificationWeight < 0 {
		return invalid(subject, "diversification_weight", "must not be negative")
	}
	if r.TopFillK <= 0 {
		return invalid(subject, "top_fill_k", "must be positive")
	}
	return nil
}
