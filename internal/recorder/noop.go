package recorder

import (
	"context"

	"IPOAllocator/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordPlan(_ context.Context, _ *model.AllocationPlan) error { return nil }

func (n *NoopRecorder) LoadPlan(_ context.Context, _ string) (*model.AllocationPlan, error) {
	return nil, ErrPlanNotFound
}

func (n *NoopRecorder) LatestPlan(_ context.Context) (*model.AllocationPlan, error) {
	return nil, ErrPlanNotFound
}

func (n *NoopRecorder) Close() error { return nil }
