// Package scheduler runs allocations on a cron schedule and answers chat
// commands.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"IPOAllocator/internal/collector"
	"IPOAllocator/internal/model"
	"IPOAllocator/internal/notifier"
	"IPOAllocator/internal/recorder"
)

// Allocator is the part of the allocation engine the scheduler drives.
type Allocator interface {
	Allocate(ctx context.Context, universe []model.Candidate, req model.AllocationRequest) (*model.AllocationPlan, error)
	Score(universe []model.Candidate) ([]model.Candidate, error)
}

// RequestFunc builds the request for a run started at now.
type RequestFunc func(now time.Time) model.AllocationRequest

const candidateListLimit = 15

// Scheduler manages the cron task and chat commands.
type Scheduler struct {
	Cron       *cron.Cron
	Collector  *collector.Collector
	Engine     Allocator
	Notifier   notifier.Notifier // nil disables notifications
	Recorder   recorder.Recorder
	NewRequest RequestFunc
	Ctx        context.Context
	now        func() time.Time
	log        zerolog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, col *collector.Collector, eng Allocator, n notifier.Notifier, rec recorder.Recorder, newRequest RequestFunc, log zerolog.Logger) *Scheduler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds()),
		Collector:  col,
		Engine:     eng,
		Notifier:   n,
		Recorder:   rec,
		NewRequest: newRequest,
		Ctx:        ctx,
		now:        time.Now,
		log:        log.With().Str("component", "scheduler").Logger(),
	}
}

// Register adds the allocation task.
func (s *Scheduler) Register(allocateCron string) error {
	if _, err := s.Cron.AddFunc(allocateCron, s.allocateTask); err != nil {
		return fmt.Errorf("register allocate task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running task to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow executes the allocation task immediately (for RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.allocateTask()
}

func (s *Scheduler) allocateTask() {
	s.log.Info().Msg("running allocation task")
	plan, err := s.allocate(s.Ctx, decimal.Zero)
	if err != nil {
		s.log.Error().Err(err).Msg("allocation task failed")
		s.trySend(fmt.Sprintf("❌ Allocation run failed: %v", err))
		return
	}
	s.trySend(notifier.FormatPlanReport(plan))
}

// allocate collects, allocates and records one plan. A positive budget
// overrides the configured one.
func (s *Scheduler) allocate(ctx context.Context, budget decimal.Decimal) (*model.AllocationPlan, error) {
	u, err := s.Collector.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	req := s.NewRequest(s.now())
	if budget.IsPositive() {
		req.Budget = budget
	}
	plan, err := s.Engine.Allocate(ctx, u.Candidates, req)
	if err != nil {
		return nil, fmt.Errorf("allocate: %w", err)
	}
	if err := s.Recorder.RecordPlan(ctx, plan); err != nil {
		s.log.Error().Err(err).Str("plan_id", plan.ID).Msg("record plan")
	}
	return plan, nil
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch strings.ToLower(fields[0]) {
	case "/plan":
		budget := decimal.Zero
		if len(fields) > 1 {
			b, err := decimal.NewFromString(strings.ReplaceAll(fields[1], ",", ""))
			if err != nil || !b.IsPositive() {
				return fmt.Sprintf("Invalid budget %q", fields[1])
			}
			budget = b
		}
		plan, err := s.allocate(ctx, budget)
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		return notifier.FormatPlanReport(plan)
	case "/candidates":
		u, err := s.Collector.Collect(ctx)
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		scored, err := s.Engine.Score(u.Candidates)
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		sort.SliceStable(scored, func(i, j int) bool {
			if scored[i].Composite != scored[j].Composite {
				return scored[i].Composite > scored[j].Composite
			}
			return scored[i].Name < scored[j].Name
		})
		return notifier.FormatCandidates(scored, candidateListLimit)
	case "/last":
		plan, err := s.Recorder.LatestPlan(ctx)
		if errors.Is(err, recorder.ErrPlanNotFound) {
			return "No plan recorded yet."
		}
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		return notifier.FormatPlanReport(plan)
	default:
		return helpText
	}
}

const helpText = "Available commands:\n• /plan [budget]: run an allocation now\n• /candidates: scored offerings in the snapshot\n• /last: the last recorded plan"

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}
