// Package allocator runs the scoring-to-allocation pipeline for one request:
// validate, score, filter, optimize, explain.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"IPOAllocator/internal/explain"
	"IPOAllocator/internal/filter"
	"IPOAllocator/internal/model"
	"IPOAllocator/internal/optimizer"
	"IPOAllocator/internal/strategy"
)

// DefaultSolverTimeout bounds one exact solve.
const DefaultSolverTimeout = 10 * time.Second

// Observer receives run telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveOutcome(status optimizer.Status)
	ObservePlan(plan *model.AllocationPlan, elapsed time.Duration)
}

// Settings tune the pipeline around the request parameters.
type Settings struct {
	NearMissMargin float64
	SolverTimeout  time.Duration
}

// Engine is safe for concurrent Allocate calls; every run works on its own
// copies of the universe and request.
type Engine struct {
	scorer    *strategy.Scorer
	explainer *explain.Builder
	exact     optimizer.Solver
	settings  Settings
	observer  Observer
	now       func() time.Time
	log       zerolog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithObserver reports solver outcomes and finished plans to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock replaces time.Now for plan timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires the pipeline. The explanation builder shares scorer, so
// explained contributions always match the composites used to allocate.
// Zero thresholds select explain.DefaultThresholds; a nil exact solver means
// every run uses the greedy fill.
func NewEngine(scorer *strategy.Scorer, thresholds explain.Thresholds, exact optimizer.Solver, settings Settings, log zerolog.Logger, opts ...Option) *Engine {
	if scorer == nil {
		scorer = strategy.DefaultScorer()
	}
	if thresholds == (explain.Thresholds{}) {
		thresholds = explain.DefaultThresholds()
	}
	explainer := explain.NewBuilder(scorer, thresholds)
	if settings.SolverTimeout <= 0 {
		settings.SolverTimeout = DefaultSolverTimeout
	}
	e := &Engine{
		scorer:    scorer,
		explainer: explainer,
		exact:     exact,
		settings:  settings,
		now:       time.Now,
		log:       log.With().Str("component", "allocator").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score validates the universe and returns scored copies in input order.
// Every invalid candidate is reported; duplicate names are invalid.
func (e *Engine) Score(universe []model.Candidate) ([]model.Candidate, error) {
	var errs []error
	seen := make(map[string]bool, len(universe))
	scored := make([]model.Candidate, 0, len(universe))

	for i := range universe {
		c := universe[i]
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if seen[key] {
			errs = append(errs, &model.ValidationError{Subject: "candidate " + c.Name, Field: "name", Reason: "is duplicated"})
			continue
		}
		seen[key] = true
		scored = append(scored, e.scorer.Apply(c))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return scored, nil
}

// Allocate produces a plan for req over universe. Only validation errors are
// returned; solver trouble degrades to the greedy fill and is recorded on
// the plan.
func (e *Engine) Allocate(ctx context.Context, universe []model.Candidate, req model.AllocationRequest) (*model.AllocationPlan, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	scored, err := e.Score(universe)
	if err != nil {
		return nil, fmt.Errorf("universe: %w", err)
	}

	res := filter.Apply(scored, req, e.settings.NearMissMargin)
	problem := optimizer.Problem{
		Items:                 make([]optimizer.Item, len(res.Eligible)),
		Budget:                req.Budget,
		DiversificationWeight: req.DiversificationWeight,
		TopK:                  req.TopFillK,
	}
	for i, c := range res.Eligible {
		problem.Items[i] = optimizer.Item{
			Name:      c.Name,
			Composite: c.Composite,
			Cost:      c.MinInvest,
			Cap:       req.LotCap,
		}
	}

	sol, out := optimizer.Optimize(ctx, problem, e.exact, e.settings.SolverTimeout, e.log)
	if e.observer != nil {
		e.observer.ObserveOutcome(out.Status)
	}

	plan := &model.AllocationPlan{
		ID:                    uuid.NewString(),
		GeneratedAt:           e.now(),
		Budget:                req.Budget,
		HoldUntil:             req.HoldUntil,
		MinScore:              req.MinScore,
		LotCap:                req.LotCap,
		DiversificationWeight: req.DiversificationWeight,
		Allocations:           []model.Allocation{},
		TotalInvested:         sol.Invested,
		Leftover:              sol.Leftover,
		Objective:             sol.Objective,
		Solver:                string(sol.Method),
		Degraded:              out.Status != optimizer.StatusOptimal,
		EligibleCount:         len(res.Eligible),
	}
	if plan.Degraded {
		plan.DegradeReason = out.Status.String()
		if out.Err != nil {
			plan.DegradeReason += ": " + out.Err.Error()
		}
	}
	for i, c := range res.Eligible {
		lots := sol.Lots[i]
		if lots == 0 {
			continue
		}
		plan.Allocations = append(plan.Allocations, model.Allocation{
			Name:      c.Name,
			Category:  c.Category,
			Lots:      lots,
			MinInvest: c.MinInvest,
			Invested:  c.MinInvest.Mul(decimal.NewFromInt(int64(lots))),
			Composite: c.Composite,
			Verdict:   c.Verdict,
		})
	}
	plan.Explanations = e.explainer.Build(res, sol)

	elapsed := time.Since(start)
	e.log.Info().
		Str("plan_id", plan.ID).
		Str("solver", plan.Solver).
		Bool("degraded", plan.Degraded).
		Int("universe", len(scored)).
		Int("eligible", plan.EligibleCount).
		Int("funded", len(plan.Allocations)).
		Str("invested", plan.TotalInvested.StringFixed(2)).
		Str("leftover", plan.Leftover.StringFixed(2)).
		Dur("elapsed", elapsed).
		Msg("allocation plan ready")
	if e.observer != nil {
		e.observer.ObservePlan(plan, elapsed)
	}
	return plan, nil
}
