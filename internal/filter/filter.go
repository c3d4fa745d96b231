// Package filter selects the candidates an allocation run may fund.
package filter

import (
	"sort"
	"time"

	"IPOAllocator/internal/model"
)

// Exclusion is a candidate the filter rejected, with every failing criterion.
type Exclusion struct {
	Candidate model.Candidate
	Reasons   []model.ReasonCode
	// NearMiss marks exclusions worth explaining: the score is within the
	// margin of the threshold, or only the hold date failed.
	NearMiss bool
}

// Result is the filter output. Both slices are ordered by composite
// descending, then name ascending.
type Result struct {
	Eligible []model.Candidate
	Excluded []Exclusion
}

// Apply splits scored candidates into eligible and excluded sets. A candidate
// is eligible iff composite >= req.MinScore and its close date is on or
// before req.HoldUntil (compared by calendar date).
func Apply(universe []model.Candidate, req model.AllocationRequest, nearMissMargin float64) Result {
	hold := dateOf(req.HoldUntil)
	res := Result{Eligible: []model.Candidate{}}

	for _, c := range universe {
		var reasons []model.ReasonCode
		belowScore := c.Composite < req.MinScore
		if belowScore {
			reasons = append(reasons, model.ReasonBelowThreshold)
		}
		if dateOf(c.CloseDate).After(hold) {
			reasons = append(reasons, model.ReasonAfterHoldUntil)
		}
		if len(reasons) == 0 {
			res.Eligible = append(res.Eligible, c)
			continue
		}
		res.Excluded = append(res.Excluded, Exclusion{
			Candidate: c,
			Reasons:   reasons,
			NearMiss:  !belowScore || c.Composite >= req.MinScore-nearMissMargin,
		})
	}

	sort.SliceStable(res.Eligible, func(i, j int) bool {
		return ranksBefore(&res.Eligible[i], &res.Eligible[j])
	})
	sort.SliceStable(res.Excluded, func(i, j int) bool {
		return ranksBefore(&res.Excluded[i].Candidate, &res.Excluded[j].Candidate)
	})
	return res
}

// NearMisses returns the exclusions flagged as near misses, in order.
func (r Result) NearMisses() []Exclusion {
	var out []Exclusion
	for _, ex := range r.Excluded {
		if ex.NearMiss {
			out = append(out, ex)
		}
	}
	return out
}

func ranksBefore(a, b *model.Candidate) bool {
	if a.Composite != b.Composite {
		return a.Composite > b.Composite
	}
	return a.Name < b.Name
}

// dateOf drops the clock so that only the calendar day in t's own location counts.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
