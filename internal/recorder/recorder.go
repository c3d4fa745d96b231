// Package recorder persists allocation plans for later review.
package recorder

import (
	"context"
	"errors"

	"IPOAllocator/internal/model"
)

// ErrPlanNotFound is returned when no stored plan matches.
var ErrPlanNotFound = errors.New("plan not found")

// Recorder persists finished plans. A stored plan must load back with every
// field the plan carries: allocations, explanations, totals and timestamps.
type Recorder interface {
	RecordPlan(ctx context.Context, plan *model.AllocationPlan) error
	LoadPlan(ctx context.Context, id string) (*model.AllocationPlan, error)
	LatestPlan(ctx context.Context) (*model.AllocationPlan, error)
	Close() error
}
