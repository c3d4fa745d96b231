package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	// DefaultMaxNodes bounds the branch-and-bound tree.
	DefaultMaxNodes = 200000

	lpTolerance = 1e-10
	integralTol = 1e-6
	boundTol    = 1e-9
)

// ErrNodeLimit is the TimedOut reason when the search tree outgrows MaxNodes.
var ErrNodeLimit = errors.New("branch-and-bound node limit reached")

// ExactSolver solves the lot problem by branch and bound over 0/1 "k-th lot"
// variables. The root is bounded by the simplex LP relaxation; every other
// node by the closed-form fractional knapsack bound, which is the same LP
// optimum for a single budget row, tightened by a lot-count bound.
//
// When the search is cut short the best feasible plan found so far is
// returned with StatusTimedOut.
type ExactSolver struct {
	MaxNodes int
	log      zerolog.Logger
}

// NewExactSolver returns a solver; maxNodes <= 0 selects DefaultMaxNodes.
func NewExactSolver(maxNodes int, log zerolog.Logger) *ExactSolver {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &ExactSolver{
		MaxNodes: maxNodes,
		log:      log.With().Str("component", "exact_solver").Logger(),
	}
}

// lotVar is the binary decision "take lot k of item".
// Its value composite − weight·(2k−1) is the marginal objective of that lot,
// so Σ over k ≤ n reproduces composite·n − weight·n².
type lotVar struct {
	item  int
	k     int
	value float64
	cost  float64 // fraction of the budget
}

type search struct {
	p      Problem
	vars   []lotVar
	byItem [][]int

	// variable orders fixed for the whole search
	byDensity []int // value/cost desc
	byCost    []int // cost asc
	byValue   []int // value desc

	best    []int
	bestObj float64
	nodes   int
}

// Solve implements Solver.
func (s *ExactSolver) Solve(ctx context.Context, p Problem) (out Outcome) {
	if err := p.Validate(); err != nil {
		return Outcome{Status: StatusUnavailable, Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: StatusUnavailable, Err: fmt.Errorf("lp solver panic: %v", r)}
		}
	}()

	st := newSearch(p)
	if len(st.vars) == 0 {
		sol := p.solution(nil, MethodExact)
		return Outcome{Status: StatusOptimal, Solution: &sol}
	}

	root := make([]int8, len(st.vars))
	for j := range root {
		root[j] = free
	}
	simplex, knapsack, err := st.rootBound(root)
	if err != nil {
		return Outcome{Status: StatusUnavailable, Err: fmt.Errorf("lp relaxation: %w", err)}
	}
	if math.Abs(simplex-knapsack) > 1e-6 {
		s.log.Warn().
			Float64("simplex", simplex).
			Float64("knapsack", knapsack).
			Msg("root relaxation bounds disagree")
	}
	if math.Max(simplex, knapsack) <= st.bestObj+boundTol {
		return st.finish(s.log, StatusOptimal, nil)
	}

	stack := [][]int8{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return st.finish(s.log, StatusTimedOut, err)
		}
		if st.nodes >= s.MaxNodes {
			return st.finish(s.log, StatusTimedOut, ErrNodeLimit)
		}
		fix := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		st.nodes++
		stack = append(stack, st.expand(fix)...)
	}
	return st.finish(s.log, StatusOptimal, nil)
}

// finish wraps the incumbent. A TimedOut outcome still carries it: it is
// feasible and at least as good as the greedy seed.
func (st *search) finish(log zerolog.Logger, status Status, reason error) Outcome {
	sol := st.p.solution(st.best, MethodExact)
	ev := log.Debug()
	if status != StatusOptimal {
		ev = log.Warn().Err(reason)
	}
	ev.Str("status", status.String()).
		Int("items", len(st.p.Items)).
		Int("vars", len(st.vars)).
		Int("nodes", st.nodes).
		Float64("objective", sol.Objective).
		Msg("exact solve finished")
	return Outcome{Status: status, Solution: &sol, Err: reason, Nodes: st.nodes}
}

const (
	free int8 = -1
	zero int8 = 0
	one  int8 = 1
)

func newSearch(p Problem) *search {
	budget := p.Budget.InexactFloat64()
	st := &search{p: p, byItem: make([][]int, len(p.Items))}
	for i, it := range p.Items {
		cost := it.Cost.InexactFloat64() / budget
		for k := 1; k <= p.EffectiveCap(i); k++ {
			v := it.Composite - p.DiversificationWeight*float64(2*k-1)
			if v <= 0 {
				break
			}
			st.byItem[i] = append(st.byItem[i], len(st.vars))
			st.vars = append(st.vars, lotVar{item: i, k: k, value: v, cost: cost})
		}
	}

	st.byDensity = st.order(func(a, b lotVar) bool { return a.value*b.cost > b.value*a.cost })
	st.byCost = st.order(func(a, b lotVar) bool { return a.cost < b.cost })
	st.byValue = st.order(func(a, b lotVar) bool { return a.value > b.value })

	// Greedy seeds the incumbent; the all-zero plan is always a fallback.
	st.best = make([]int, len(p.Items))
	g := Greedy(p)
	if g.Objective > 0 {
		st.best = g.Lots
		st.bestObj = g.Objective
	}
	return st
}

// order sorts variable indices by less; ties keep item and lot order, so the
// lots of one item stay in k order.
func (st *search) order(less func(a, b lotVar) bool) []int {
	idx := make([]int, len(st.vars))
	for j := range idx {
		idx[j] = j
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return less(st.vars[idx[a]], st.vars[idx[b]])
	})
	return idx
}

// rootBound solves the root relaxation with the simplex method and, as a
// cross-check, with the knapsack bound used below the root.
func (st *search) rootBound(root []int8) (simplex, knapsack float64, err error) {
	open := make([]int, len(st.vars))
	for j := range open {
		open[j] = j
	}
	simplex, _, err = relax(st.vars, open, 1)
	if err != nil {
		return 0, 0, err
	}
	return simplex, st.knapsack(root, 1).value, nil
}

// relaxation is the fractional knapsack optimum over the free variables.
// split is the variable taken fractionally, or -1 when the optimum is integral.
type relaxation struct {
	value float64
	taken []int
	split int
}

// knapsack fills room with the free variables in density order.
func (st *search) knapsack(fix []int8, room float64) relaxation {
	r := relaxation{split: -1}
	for _, j := range st.byDensity {
		if fix[j] != free {
			continue
		}
		v := st.vars[j]
		if v.cost <= room+boundTol {
			r.value += v.value
			r.taken = append(r.taken, j)
			room -= v.cost
			continue
		}
		if frac := room / v.cost; frac > integralTol {
			r.value += frac * v.value
			r.split = j
		}
		break
	}
	return r
}

// cheapFill takes the cheapest free lots while they fit in room. The result
// is a feasible completion of fix worth fillValue, and it has the most lots
// any completion can have, so the m largest free values bound every
// completion: that is countBound.
func (st *search) cheapFill(fix []int8, room float64) (fill []int, fillValue, countBound float64) {
	for _, j := range st.byCost {
		if fix[j] != free {
			continue
		}
		if st.vars[j].cost > room+boundTol {
			break
		}
		room -= st.vars[j].cost
		fill = append(fill, j)
		fillValue += st.vars[j].value
	}
	m := len(fill)
	for _, j := range st.byValue {
		if m == 0 {
			break
		}
		if fix[j] != free {
			continue
		}
		countBound += st.vars[j].value
		m--
	}
	return fill, fillValue, countBound
}

// expand bounds one node and returns the children still worth exploring.
// The "take" child is pushed last so it is explored first.
func (st *search) expand(fix []int8) [][]int8 {
	fixedValue, fixedCost := 0.0, 0.0
	for j, f := range fix {
		if f == one {
			fixedValue += st.vars[j].value
			fixedCost += st.vars[j].cost
		}
	}
	room := 1 - fixedCost
	if room < -boundTol {
		return nil
	}
	if room < 0 {
		room = 0
	}

	rel := st.knapsack(fix, room)
	if fixedValue+rel.value <= st.bestObj+boundTol {
		return nil
	}
	if rel.split < 0 {
		st.consider(fix, rel.taken)
		return nil
	}

	fill, fillValue, countBound := st.cheapFill(fix, room)
	if fixedValue+fillValue > st.bestObj+boundTol {
		st.consider(fix, fill)
	}
	if fixedValue+countBound <= st.bestObj+boundTol {
		return nil
	}

	var children [][]int8
	if c := st.fixed(fix, rel.split, zero); c != nil {
		children = append(children, c)
	}
	if c := st.fixed(fix, rel.split, one); c != nil {
		children = append(children, c)
	}
	return children
}

// fixed copies fix with variable j set to val. Lots of one item are taken in
// order, so taking lot k takes every earlier lot and dropping it drops every
// later one. Returns nil when that contradicts an existing fixing.
func (st *search) fixed(fix []int8, j int, val int8) []int8 {
	out := make([]int8, len(fix))
	copy(out, fix)
	v := st.vars[j]
	for _, m := range st.byItem[v.item] {
		k := st.vars[m].k
		if (val == one && k > v.k) || (val == zero && k < v.k) {
			continue
		}
		if out[m] != free && out[m] != val {
			return nil
		}
		out[m] = val
	}
	return out
}

// consider promotes an integral relaxation to incumbent after an exact
// decimal feasibility check.
func (st *search) consider(fix []int8, taken []int) {
	lots := make([]int, len(st.p.Items))
	for j, f := range fix {
		if f == one {
			lots[st.vars[j].item]++
		}
	}
	for _, j := range taken {
		lots[st.vars[j].item]++
	}
	if !st.p.Feasible(lots) {
		return
	}
	if obj := st.p.Objective(lots); obj > st.bestObj+boundTol {
		st.best = lots
		st.bestObj = obj
	}
}

// relax maximizes Σ value·y over the open variables subject to
// Σ cost·y ≤ room and 0 ≤ y ≤ 1, in the standard form lp.Simplex expects:
//
//	columns: y (f) | upper-bound slacks s (f) | budget slack t (1)
//	row 0:   cost·y + t = room
//	row 1+i: y_i + s_i = 1
//
// The slack columns form an identity basis that is feasible for room ≥ 0.
func relax(vars []lotVar, open []int, room float64) (float64, []float64, error) {
	f := len(open)
	if f == 0 {
		return 0, nil, nil
	}
	rows, cols := f+1, 2*f+1
	A := mat.NewDense(rows, cols, nil)
	c := make([]float64, cols)
	b := make([]float64, rows)
	basic := make([]int, rows)

	b[0] = room
	A.Set(0, 2*f, 1)
	for idx, j := range open {
		c[idx] = -vars[j].value
		A.Set(0, idx, vars[j].cost)
		A.Set(1+idx, idx, 1)
		A.Set(1+idx, f+idx, 1)
		b[1+idx] = 1
		basic[idx] = f + idx
	}
	basic[f] = 2 * f

	optF, x, err := lp.Simplex(c, A, b, lpTolerance, basic)
	if err != nil {
		return 0, nil, err
	}
	return -optF, x[:f], nil
}
