package optimizer

import (
	"sort"
)

// Greedy is the deterministic fallback fill:
//  1. rank by composite/cost, ties by composite desc then name asc;
//  2. one lot to each candidate in rank order while the budget permits;
//  3. round robin over the top K by current marginal density until a full
//     round grants nothing;
//  4. spend what is left on the densest candidate that still fits.
//
// It stops only when no candidate below its cap fits the remaining budget.
func Greedy(p Problem) Solution {
	n := len(p.Items)
	lots := make([]int, n)
	if n == 0 {
		return p.solution(lots, MethodGreedy)
	}
	remaining := p.Budget

	canTake := func(i int) bool {
		return lots[i] < p.Items[i].Cap && p.Items[i].Cost.LessThanOrEqual(remaining)
	}
	take := func(i int) {
		lots[i]++
		remaining = remaining.Sub(p.Items[i].Cost)
	}

	for _, i := range p.rank(func(i int) float64 { return p.density(i) }) {
		if canTake(i) {
			take(i)
		}
	}

	k := p.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	if k > n {
		k = n
	}
	for {
		granted := false
		for _, i := range p.rank(func(i int) float64 { return p.marginalDensity(i, lots[i]) })[:k] {
			if canTake(i) {
				take(i)
				granted = true
			}
		}
		if !granted {
			break
		}
	}

	for {
		pick := -1
		for _, i := range p.rank(func(i int) float64 { return p.marginalDensity(i, lots[i]) }) {
			if canTake(i) {
				pick = i
				break
			}
		}
		if pick < 0 {
			break
		}
		take(pick)
	}

	return p.solution(lots, MethodGreedy)
}

// density is value per unit of money.
func (p Problem) density(i int) float64 {
	it := p.Items[i]
	return it.Composite / it.Cost.InexactFloat64()
}

// marginalDensity is the objective gain of lot held+1 per unit of money.
func (p Problem) marginalDensity(i, held int) float64 {
	it := p.Items[i]
	gain := it.Composite - p.DiversificationWeight*float64(2*held+1)
	return gain / it.Cost.InexactFloat64()
}

// rank orders item indices by score desc, composite desc, name asc, index asc.
func (p Problem) rank(score func(i int) float64) []int {
	idx := make([]int, len(p.Items))
	scores := make([]float64, len(p.Items))
	for i := range idx {
		idx[i] = i
		scores[i] = score(i)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		if p.Items[ia].Composite != p.Items[ib].Composite {
			return p.Items[ia].Composite > p.Items[ib].Composite
		}
		if p.Items[ia].Name != p.Items[ib].Name {
			return p.Items[ia].Name < p.Items[ib].Name
		}
		return ia < ib
	})
	return idx
}
