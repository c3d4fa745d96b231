package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoListings() Problem {
	return Problem{
		Items: []Item{
			{Name: "A", Composite: 8.2, Cost: decimal.NewFromInt(150000), Cap: 3},
			{Name: "B", Composite: 7.5, Cost: decimal.NewFromInt(100000), Cap: 3},
		},
		Budget:                decimal.NewFromInt(500000),
		DiversificationWeight: 0.1,
		TopK:                  DefaultTopK,
	}
}

// bruteForce enumerates every lot vector within caps.
func bruteForce(p Problem) float64 {
	best := 0.0
	lots := make([]int, len(p.Items))
	var walk func(i int)
	walk = func(i int) {
		if i == len(p.Items) {
			if p.Feasible(lots) {
				best = math.Max(best, p.Objective(lots))
			}
			return
		}
		for n := 0; n <= p.Items[i].Cap; n++ {
			lots[i] = n
			walk(i + 1)
		}
		lots[i] = 0
	}
	walk(0)
	return best
}

func randomProblem(r *rand.Rand) Problem {
	n := 1 + r.Intn(7)
	p := Problem{
		Budget:                decimal.NewFromInt(int64(100+r.Intn(500)) * 1000),
		DiversificationWeight: float64(r.Intn(50)) / 100,
		TopK:                  1 + r.Intn(3),
	}
	for i := 0; i < n; i++ {
		p.Items = append(p.Items, Item{
			Name:      fmt.Sprintf("IPO-%d", i),
			Composite: math.Round(r.Float64()*10000) / 1000,
			Cost:      decimal.NewFromInt(int64(10+r.Intn(190)) * 1000),
			Cap:       1 + r.Intn(3),
		})
	}
	return p
}

func assertBudgetIdentity(t *testing.T, p Problem, sol Solution) {
	t.Helper()
	assert.True(t, sol.Invested.Add(sol.Leftover).Equal(p.Budget), "invested + leftover must equal budget")
	assert.False(t, sol.Leftover.IsNegative())
	assert.True(t, p.Feasible(sol.Lots))
}

func TestGreedy_TwoListings(t *testing.T) {
	p := twoListings()
	sol := Greedy(p)

	assert.Equal(t, []int{2, 2}, sol.Lots)
	assert.Equal(t, MethodGreedy, sol.Method)
	assert.True(t, sol.Leftover.IsZero())
	assert.InDelta(t, 30.6, sol.Objective, 1e-9)
	assertBudgetIdentity(t, p, sol)
}

func TestGreedy_UnaffordableSingle(t *testing.T) {
	p := Problem{
		Items:  []Item{{Name: "X", Composite: 9, Cost: decimal.NewFromInt(20000), Cap: 3}},
		Budget: decimal.NewFromInt(15000),
	}
	sol := Greedy(p)

	assert.Equal(t, []int{0}, sol.Lots)
	assert.True(t, sol.Invested.IsZero())
	assert.True(t, sol.Leftover.Equal(p.Budget))
}

func TestGreedy_LeftoverCannotBuyAnotherLot(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for run := 0; run < 300; run++ {
		p := randomProblem(r)
		sol := Greedy(p)
		assertBudgetIdentity(t, p, sol)
		for i, it := range p.Items {
			if sol.Lots[i] < it.Cap {
				assert.True(t, it.Cost.GreaterThan(sol.Leftover),
					"run %d: %s could take another lot (cost %s, leftover %s)", run, it.Name, it.Cost, sol.Leftover)
			}
		}
	}
}

func TestGreedy_ExtraLotsFollowMarginalDensity(t *testing.T) {
	p := Problem{
		Items: []Item{
			{Name: "A", Composite: 5, Cost: decimal.NewFromInt(100), Cap: 3},
			{Name: "B", Composite: 4.5, Cost: decimal.NewFromInt(100), Cap: 3},
		},
		Budget:                decimal.NewFromInt(400),
		DiversificationWeight: 1,
		TopK:                  1,
	}
	// A's third lot gains nothing, so the last round goes to B.
	sol := Greedy(p)
	assert.Equal(t, []int{2, 2}, sol.Lots)
	assert.InDelta(t, 11.0, sol.Objective, 1e-9)

	p.DiversificationWeight = 0
	assert.Equal(t, []int{3, 1}, Greedy(p).Lots)
}

func TestGreedy_Deterministic(t *testing.T) {
	p := Problem{
		Items: []Item{
			{Name: "beta", Composite: 6, Cost: decimal.NewFromInt(10000), Cap: 1},
			{Name: "alpha", Composite: 6, Cost: decimal.NewFromInt(10000), Cap: 1},
		},
		Budget: decimal.NewFromInt(10000),
	}
	sol := Greedy(p)

	assert.Equal(t, []int{0, 1}, sol.Lots, "equal density and composite ties break by name")
}

func TestExact_TwoListings(t *testing.T) {
	p := twoListings()
	out := NewExactSolver(0, zerolog.Nop()).Solve(context.Background(), p)

	require.Equal(t, StatusOptimal, out.Status)
	require.NotNil(t, out.Solution)
	assert.Equal(t, []int{2, 2}, out.Solution.Lots)
	assert.Equal(t, MethodExact, out.Solution.Method)
	assert.InDelta(t, 30.6, out.Solution.Objective, 1e-9)
	assertBudgetIdentity(t, p, *out.Solution)
}

func TestExact_MatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	solver := NewExactSolver(0, zerolog.Nop())
	for run := 0; run < 200; run++ {
		p := randomProblem(r)
		out := solver.Solve(context.Background(), p)
		require.Equal(t, StatusOptimal, out.Status, "run %d: %v", run, out.Err)

		assert.InDelta(t, bruteForce(p), out.Solution.Objective, 1e-6, "run %d", run)
		assertBudgetIdentity(t, p, *out.Solution)
		assert.GreaterOrEqual(t, out.Solution.Objective, Greedy(p).Objective-1e-9, "run %d", run)
	}
}

func TestExact_NothingWorthBuying(t *testing.T) {
	p := Problem{
		Items:                 []Item{{Name: "flat", Composite: 0.05, Cost: decimal.NewFromInt(1000), Cap: 3}},
		Budget:                decimal.NewFromInt(10000),
		DiversificationWeight: 0.1,
	}
	out := NewExactSolver(0, zerolog.Nop()).Solve(context.Background(), p)

	require.Equal(t, StatusOptimal, out.Status)
	assert.Equal(t, []int{0}, out.Solution.Lots)
	assert.True(t, out.Solution.Leftover.Equal(p.Budget))
}

func TestExact_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewExactSolver(0, zerolog.Nop()).Solve(ctx, twoListings())

	assert.Equal(t, StatusTimedOut, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
	require.NotNil(t, out.Solution, "the greedy-seeded incumbent is returned")
	assert.Equal(t, Greedy(twoListings()).Lots, out.Solution.Lots)
}

func TestExact_NodeLimitKeepsIncumbent(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	p := largeProblem(r, 40)

	out := NewExactSolver(1, zerolog.Nop()).Solve(context.Background(), p)

	assert.Equal(t, StatusTimedOut, out.Status)
	assert.ErrorIs(t, out.Err, ErrNodeLimit)
	require.NotNil(t, out.Solution)
	assertBudgetIdentity(t, p, *out.Solution)
	assert.GreaterOrEqual(t, out.Solution.Objective, Greedy(p).Objective-1e-9)
}

// largeProblem draws n listings shaped like a busy IPO month: lot prices
// around 14-15k, composites between 5 and 10.
func largeProblem(r *rand.Rand, n int) Problem {
	p := Problem{
		Budget:                decimal.NewFromInt(int64(n) * 12000),
		DiversificationWeight: 0.1,
		TopK:                  DefaultTopK,
	}
	for i := 0; i < n; i++ {
		p.Items = append(p.Items, Item{
			Name:      fmt.Sprintf("IPO-%02d", i),
			Composite: 5 + math.Round(r.Float64()*5000)/1000,
			Cost:      decimal.NewFromInt(int64(13500 + r.Intn(2000))),
			Cap:       3,
		})
	}
	return p
}

func TestExact_ScalesToTensOfCandidates(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	solver := NewExactSolver(0, zerolog.Nop())
	for _, n := range []int{30, 40, 50, 60} {
		p := largeProblem(r, n)

		start := time.Now()
		out := solver.Solve(context.Background(), p)
		elapsed := time.Since(start)

		require.Equal(t, StatusOptimal, out.Status, "n=%d: %v after %d nodes", n, out.Err, out.Nodes)
		assert.Less(t, elapsed, 2*time.Second, "n=%d", n)
		assertBudgetIdentity(t, p, *out.Solution)
		assert.GreaterOrEqual(t, out.Solution.Objective, Greedy(p).Objective-1e-9, "n=%d", n)
	}
}

func TestExact_TiedCompositesWithoutPenalty(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	p := Problem{
		Budget: decimal.NewFromInt(250000),
		TopK:   DefaultTopK,
	}
	for i := 0; i < 30; i++ {
		p.Items = append(p.Items, Item{
			Name:      fmt.Sprintf("IPO-%02d", i),
			Composite: 7,
			Cost:      decimal.NewFromInt(int64(10000 + r.Intn(9000))),
			Cap:       3,
		})
	}

	start := time.Now()
	out := NewExactSolver(0, zerolog.Nop()).Solve(context.Background(), p)

	require.Equal(t, StatusOptimal, out.Status, "%v after %d nodes", out.Err, out.Nodes)
	assert.Less(t, time.Since(start), 2*time.Second)

	// With equal values the optimum is the largest lot count that fits,
	// i.e. the cheapest lots first.
	costs := make([]int64, 0, 90)
	for _, it := range p.Items {
		for k := 0; k < it.Cap; k++ {
			costs = append(costs, it.Cost.IntPart())
		}
	}
	sort.Slice(costs, func(a, b int) bool { return costs[a] < costs[b] })
	count, spent := 0, int64(0)
	for _, c := range costs {
		if spent+c > p.Budget.IntPart() {
			break
		}
		spent += c
		count++
	}
	assert.InDelta(t, 7*float64(count), out.Solution.Objective, 1e-6)
}

func TestExact_InvalidProblem(t *testing.T) {
	p := twoListings()
	p.Budget = decimal.Zero

	out := NewExactSolver(0, zerolog.Nop()).Solve(context.Background(), p)

	assert.Equal(t, StatusUnavailable, out.Status)
	assert.Error(t, out.Err)
}

type stubSolver struct {
	out   Outcome
	calls int
}

func (s *stubSolver) Solve(ctx context.Context, p Problem) Outcome {
	s.calls++
	return s.out
}

func TestOptimize_EmptyItems(t *testing.T) {
	p := Problem{Budget: decimal.NewFromInt(100000)}
	stub := &stubSolver{}

	sol, out := Optimize(context.Background(), p, stub, time.Second, zerolog.Nop())

	assert.Equal(t, 0, stub.calls)
	assert.Equal(t, StatusOptimal, out.Status)
	assert.Equal(t, MethodNone, sol.Method)
	assert.True(t, sol.Leftover.Equal(p.Budget))
}

func TestOptimize_UsesExactWhenOptimal(t *testing.T) {
	p := twoListings()
	sol, out := Optimize(context.Background(), p, NewExactSolver(0, zerolog.Nop()), time.Second, zerolog.Nop())

	assert.Equal(t, StatusOptimal, out.Status)
	assert.Equal(t, MethodExact, sol.Method)
	assert.Equal(t, []int{2, 2}, sol.Lots)
}

func TestOptimize_DegradesToGreedy(t *testing.T) {
	cases := []struct {
		name   string
		solver Solver
		status Status
		err    error
	}{
		{"no solver", nil, StatusUnavailable, ErrNoSolver},
		{"timed out", &stubSolver{out: Outcome{Status: StatusTimedOut, Err: context.DeadlineExceeded}}, StatusTimedOut, context.DeadlineExceeded},
		{"unavailable", &stubSolver{out: Outcome{Status: StatusUnavailable, Err: errors.New("lp broke")}}, StatusUnavailable, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := twoListings()
			sol, out := Optimize(context.Background(), p, tc.solver, time.Second, zerolog.Nop())

			assert.Equal(t, tc.status, out.Status)
			if tc.err != nil {
				assert.ErrorIs(t, out.Err, tc.err)
			}
			assert.Equal(t, MethodGreedy, sol.Method)
			assert.Equal(t, Greedy(p).Lots, sol.Lots)
			assertBudgetIdentity(t, p, sol)
		})
	}
}

// greedyTrap is a problem where the densest listing crowds out a better pair.
func greedyTrap() Problem {
	return Problem{
		Items: []Item{
			{Name: "A", Composite: 9, Cost: decimal.NewFromInt(60), Cap: 1},
			{Name: "B", Composite: 5, Cost: decimal.NewFromInt(50), Cap: 1},
			{Name: "C", Composite: 5, Cost: decimal.NewFromInt(50), Cap: 1},
		},
		Budget: decimal.NewFromInt(100),
		TopK:   DefaultTopK,
	}
}

func TestOptimize_KeepsBetterTimedOutPlan(t *testing.T) {
	p := greedyTrap()
	require.Equal(t, []int{1, 0, 0}, Greedy(p).Lots)

	better := p.solution([]int{0, 1, 1}, MethodExact)
	stub := &stubSolver{out: Outcome{Status: StatusTimedOut, Err: context.DeadlineExceeded, Solution: &better}}

	sol, out := Optimize(context.Background(), p, stub, time.Second, zerolog.Nop())

	assert.Equal(t, StatusTimedOut, out.Status)
	assert.Equal(t, MethodExact, sol.Method)
	assert.Equal(t, []int{0, 1, 1}, sol.Lots)
	assert.InDelta(t, 10.0, sol.Objective, 1e-9)
}

func TestOptimize_PrefersGreedyOverWorseTimedOutPlan(t *testing.T) {
	p := greedyTrap()
	worse := p.solution([]int{0, 1, 0}, MethodExact)
	stub := &stubSolver{out: Outcome{Status: StatusTimedOut, Err: ErrNodeLimit, Solution: &worse}}

	sol, _ := Optimize(context.Background(), p, stub, time.Second, zerolog.Nop())

	assert.Equal(t, MethodGreedy, sol.Method)
	assert.Equal(t, []int{1, 0, 0}, sol.Lots)
}

func TestExact_BeatsGreedyTrap(t *testing.T) {
	out := NewExactSolver(0, zerolog.Nop()).Solve(context.Background(), greedyTrap())

	require.Equal(t, StatusOptimal, out.Status)
	assert.Equal(t, []int{0, 1, 1}, out.Solution.Lots)
}

func TestProblem_EffectiveCap(t *testing.T) {
	p := Problem{
		Items: []Item{
			{Name: "cheap", Cost: decimal.NewFromInt(10000), Cap: 3},
			{Name: "dear", Cost: decimal.NewFromInt(40000), Cap: 3},
			{Name: "out", Cost: decimal.NewFromInt(90000), Cap: 3},
		},
		Budget: decimal.NewFromInt(85000),
	}

	assert.Equal(t, 3, p.EffectiveCap(0))
	assert.Equal(t, 2, p.EffectiveCap(1))
	assert.Equal(t, 0, p.EffectiveCap(2))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "optimal", StatusOptimal.String())
	assert.Equal(t, "timed_out", StatusTimedOut.String())
	assert.Equal(t, "unavailable", StatusUnavailable.String())
}
