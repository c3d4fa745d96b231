// Package optimizer assigns integer lot counts to eligible candidates under a
// budget, maximizing Σ composite·lots − weight·Σ lots².
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultTopK is the round-robin width of the greedy fill.
const DefaultTopK = 3

// ErrNoSolver is the Unavailable reason when no exact solver is configured.
var ErrNoSolver = errors.New("no exact solver configured")

// Item is one fundable candidate.
type Item struct {
	Name      string
	Composite float64
	Cost      decimal.Decimal // price of one lot
	Cap       int
}

// Problem is the optimizer input.
type Problem struct {
	Items                 []Item
	Budget                decimal.Decimal
	DiversificationWeight float64
	TopK                  int
}

// Validate guards the arithmetic the solvers rely on.
func (p Problem) Validate() error {
	if !p.Budget.IsPositive() {
		return fmt.Errorf("budget must be positive")
	}
	if p.DiversificationWeight < 0 {
		return fmt.Errorf("diversification weight must not be negative")
	}
	for _, it := range p.Items {
		if !it.Cost.IsPositive() {
			return fmt.Errorf("item %s: lot cost must be positive", it.Name)
		}
		if it.Cap < 0 {
			return fmt.Errorf("item %s: cap must not be negative", it.Name)
		}
	}
	return nil
}

// Method names the path that produced a solution.
type Method string

const (
	MethodNone   Method = "none"
	MethodExact  Method = "exact"
	MethodGreedy Method = "greedy"
)

// Solution is an integer lot assignment aligned with Problem.Items.
type Solution struct {
	Lots      []int
	Invested  decimal.Decimal
	Leftover  decimal.Decimal
	Objective float64
	Method    Method
}

// Status tags the outcome of an exact solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusTimedOut
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusTimedOut:
		return "timed_out"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the tagged result of a solver: Optimal carries a Solution,
// TimedOut and Unavailable carry the reason in Err. TimedOut may also carry
// the best feasible Solution found before the cut-off.
type Outcome struct {
	Status   Status
	Solution *Solution
	Err      error
	Nodes    int
}

// Solver computes an optimal assignment or reports why it could not.
type Solver interface {
	Solve(ctx context.Context, p Problem) Outcome
}

// Optimize runs the exact solver under the time budget and degrades to the
// greedy fill when it times out or is unavailable. A timed-out solver's best
// plan so far is kept when it beats the greedy fill. It never fails.
func Optimize(ctx context.Context, p Problem, exact Solver, timeout time.Duration, log zerolog.Logger) (Solution, Outcome) {
	if len(p.Items) == 0 {
		sol := p.solution(nil, MethodNone)
		return sol, Outcome{Status: StatusOptimal, Solution: &sol}
	}

	var out Outcome
	if exact == nil {
		out = Outcome{Status: StatusUnavailable, Err: ErrNoSolver}
	} else {
		solveCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			solveCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		out = exact.Solve(solveCtx, p)
	}

	if out.Status == StatusOptimal && out.Solution != nil {
		return *out.Solution, out
	}

	greedy := Greedy(p)
	if out.Solution != nil && p.Feasible(out.Solution.Lots) && out.Solution.Objective > greedy.Objective+boundTol {
		log.Warn().
			Str("status", out.Status.String()).
			Err(out.Err).
			Int("nodes", out.Nodes).
			Int("items", len(p.Items)).
			Float64("objective", out.Solution.Objective).
			Float64("greedy_objective", greedy.Objective).
			Msg("exact solver degraded, keeping its best plan")
		return *out.Solution, out
	}

	log.Warn().
		Str("status", out.Status.String()).
		Err(out.Err).
		Int("nodes", out.Nodes).
		Int("items", len(p.Items)).
		Msg("exact solver degraded, using greedy fill")
	return greedy, out
}

// Objective evaluates Σ composite·lots − weight·Σ lots².
func (p Problem) Objective(lots []int) float64 {
	total := 0.0
	for i, n := range lots {
		if n == 0 {
			continue
		}
		k := float64(n)
		total += p.Items[i].Composite*k - p.DiversificationWeight*k*k
	}
	return total
}

// EffectiveCap bounds an item's cap by how many lots the whole budget buys.
func (p Problem) EffectiveCap(i int) int {
	it := p.Items[i]
	affordable := p.Budget.Div(it.Cost).Floor().IntPart()
	if affordable < int64(it.Cap) {
		return int(affordable)
	}
	return it.Cap
}

// Invested sums lots × cost exactly.
func (p Problem) Invested(lots []int) decimal.Decimal {
	total := decimal.Zero
	for i, n := range lots {
		if n > 0 {
			total = total.Add(p.Items[i].Cost.Mul(decimal.NewFromInt(int64(n))))
		}
	}
	return total
}

// Feasible reports whether lots respects every cap and the budget.
func (p Problem) Feasible(lots []int) bool {
	if len(lots) != len(p.Items) {
		return false
	}
	for i, n := range lots {
		if n < 0 || n > p.Items[i].Cap {
			return false
		}
	}
	return p.Invested(lots).LessThanOrEqual(p.Budget)
}

func (p Problem) solution(lots []int, method Method) Solution {
	if lots == nil {
		lots = make([]int, len(p.Items))
	}
	invested := p.Invested(lots)
	return Solution{
		Lots:      lots,
		Invested:  invested,
		Leftover:  p.Budget.Sub(invested),
		Objective: p.Objective(lots),
		Method:    method,
	}
}
