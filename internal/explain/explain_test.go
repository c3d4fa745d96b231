package explain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IPOAllocator/internal/filter"
	"IPOAllocator/internal/model"
	"IPOAllocator/internal/optimizer"
	"IPOAllocator/internal/strategy"
)

func ptr(v float64) *float64 { return &v }

var (
	closeDate = time.Date(2026, 10, 22, 0, 0, 0, 0, time.UTC)
	holdUntil = time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC)
)

func listing(name string, gmpPct, price, sizeCr, quota float64) model.Candidate {
	return model.Candidate{
		Name:        name,
		Category:    model.CategoryMainboard,
		PriceBand:   model.PriceBand{Min: price, Max: price},
		IssueSizeCr: sizeCr,
		GMP:         gmpPct,
		GMPUnit:     model.GMPPercent,
		CloseDate:   closeDate,
		MinInvest:   decimal.NewFromInt(14800),
		RetailQuota: quota,
	}
}

func strongListing(name string) model.Candidate {
	c := listing(name, 90, 80, 800, 80)
	c.Fundamentals = model.Fundamentals{ROE: ptr(25), DebtToEquity: ptr(0.2), EPS: ptr(5)}
	return c
}

func weakSME() model.Candidate {
	c := listing("Tiny Textiles", 0, 300, 50, 20)
	c.Category = model.CategorySME
	c.Fundamentals = model.Fundamentals{ROE: ptr(-5), DebtToEquity: ptr(3), EPS: ptr(-1)}
	return c
}

func scoredRun(t *testing.T) (filter.Result, optimizer.Solution) {
	t.Helper()
	scorer := strategy.DefaultScorer()

	second := strongListing("Second Steel")
	second.RetailQuota = 70
	late := strongListing("Late Logistics")
	late.CloseDate = holdUntil.AddDate(0, 0, 15)
	mid := listing("Mid Motors", 20, 390, 1200, 35)
	mid.Sentiment = ptr(6)

	var universe []model.Candidate
	for _, c := range []model.Candidate{weakSME(), mid, late, second, strongListing("Strong Solar")} {
		universe = append(universe, scorer.Apply(c))
	}

	req := model.NewAllocationRequest(decimal.NewFromInt(100000), holdUntil)
	res := filter.Apply(universe, req, 1.0)
	require.Len(t, res.Eligible, 2)
	require.Equal(t, "Strong Solar", res.Eligible[0].Name)
	require.Equal(t, "Second Steel", res.Eligible[1].Name)

	return res, optimizer.Solution{Lots: []int{2, 0}}
}

func TestBuild_OrderAndStatus(t *testing.T) {
	res, sol := scoredRun(t)

	out := NewBuilder(nil, DefaultThresholds()).Build(res, sol)

	require.Len(t, out, 4, "the far-below-threshold SME is not a near miss")
	assert.Equal(t, "Strong Solar", out[0].Name)
	assert.Equal(t, model.StatusAllocated, out[0].Status)
	assert.Equal(t, 2, out[0].Lots)
	assert.True(t, out[0].Invested.Equal(decimal.NewFromInt(29600)))
	assert.Empty(t, out[0].Exclusion)

	assert.Equal(t, "Second Steel", out[1].Name)
	assert.Equal(t, model.StatusUnfunded, out[1].Status)
	assert.Equal(t, []model.ReasonCode{model.ReasonNotFunded}, out[1].Exclusion)
	assert.True(t, out[1].Invested.IsZero())

	assert.Equal(t, "Late Logistics", out[2].Name)
	assert.Equal(t, model.StatusExcluded, out[2].Status)
	assert.Equal(t, []model.ReasonCode{model.ReasonAfterHoldUntil}, out[2].Exclusion)

	assert.Equal(t, "Mid Motors", out[3].Name)
	assert.Equal(t, []model.ReasonCode{model.ReasonBelowThreshold}, out[3].Exclusion)
}

func TestBuild_FavorableReasons(t *testing.T) {
	res, sol := scoredRun(t)
	out := NewBuilder(nil, DefaultThresholds()).Build(res, sol)

	assert.Equal(t, []model.ReasonCode{
		model.ReasonStrongGMP,
		model.ReasonHighRetailQuota,
		model.ReasonSolidFundamentals,
		model.ReasonGoodVerdict,
	}, out[0].Favorable)
	assert.Empty(t, out[0].Caution)

	// a retail-quota sub-score of exactly 7 is not above the threshold
	assert.NotContains(t, out[1].Favorable, model.ReasonHighRetailQuota)
	assert.Contains(t, out[1].Favorable, model.ReasonStrongGMP)
}

func TestBuild_CautionReasons(t *testing.T) {
	scorer := strategy.DefaultScorer()
	weak := scorer.Apply(weakSME())
	res := filter.Result{Eligible: []model.Candidate{weak}}

	out := NewBuilder(scorer, DefaultThresholds()).Build(res, optimizer.Solution{Lots: []int{1}})

	require.Len(t, out, 1)
	assert.Equal(t, []model.ReasonCode{
		model.ReasonWeakFundamentals,
		model.ReasonLowRetailQuota,
		model.ReasonSMECategory,
		model.ReasonNonPositiveGMP,
	}, out[0].Caution)
	assert.Empty(t, out[0].Favorable)
	assert.Equal(t, model.VerdictSkip, out[0].Verdict)
}

func TestBuild_ContributionsReconstructComposite(t *testing.T) {
	res, sol := scoredRun(t)
	out := NewBuilder(nil, DefaultThresholds()).Build(res, sol)

	for _, e := range out {
		require.Len(t, e.Contributions, 5)
		require.Len(t, e.BaseContributions, 4)
		sum := 0.0
		for _, f := range e.Contributions {
			sum += f.Weighted
		}
		assert.InDelta(t, e.Composite, sum, 0.0005, e.Name)
	}
}

func TestBuild_EmptyRun(t *testing.T) {
	out := NewBuilder(nil, DefaultThresholds()).Build(filter.Result{}, optimizer.Solution{})
	assert.Empty(t, out)
}

func TestBuild_CustomThresholds(t *testing.T) {
	res, sol := scoredRun(t)
	th := DefaultThresholds()
	th.StrongGMPStrength = 9.5

	out := NewBuilder(nil, th).Build(res, sol)

	assert.NotContains(t, out[0].Favorable, model.ReasonStrongGMP)
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	th := DefaultThresholds()
	th.HighRetailQuota = 11
	assert.Error(t, th.Validate())

	th = DefaultThresholds()
	th.WeakFundamentals = 7
	assert.Error(t, th.Validate())

	th = DefaultThresholds()
	th.LowRetailQuota = 8
	assert.Error(t, th.Validate())
}
