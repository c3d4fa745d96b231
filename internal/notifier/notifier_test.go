package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IPOAllocator/internal/model"
)

func testNotifier(url string) *TelegramNotifier {
	n := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	n.APIBase = url
	n.Backoff = time.Millisecond
	return n
}

func TestSend_PostsHTMLMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, testNotifier(srv.URL).Send(context.Background(), "<b>hi</b>"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "<b>hi</b>", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
}

func TestSendWithRetry_RecoversAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flood", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, testNotifier(srv.URL).SendWithRetry(context.Background(), "x", 3))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := testNotifier(srv.URL).SendWithRetry(context.Background(), "x", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 retries exhausted")
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(3), calls.Load())
}

func TestStartPolling_RepliesToCommands(t *testing.T) {
	var (
		mu      sync.Mutex
		replies []string
		polled  atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if polled.Add(1) == 1 {
				fmt.Fprint(w, `{"ok":true,"result":[{"update_id":7,"message":{"text":" /last "}},{"update_id":8}]}`)
				return
			}
			assert.Equal(t, "9", r.URL.Query().Get("offset"))
			fmt.Fprint(w, `{"ok":true,"result":[]}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			replies = append(replies, body["text"])
			mu.Unlock()
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		testNotifier(srv.URL).StartPolling(ctx, func(_ context.Context, cmd string) string {
			return "got " + cmd
		})
		close(done)
	}()

	require.Eventually(t, func() bool { return polled.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("polling did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"got /last"}, replies)
}

func testPlan() *model.AllocationPlan {
	return &model.AllocationPlan{
		GeneratedAt:   time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
		Budget:        decimal.NewFromInt(100000),
		HoldUntil:     time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC),
		MinScore:      5,
		LotCap:        3,
		EligibleCount: 2,
		Allocations: []model.Allocation{
			{Name: "R&D Labs", Lots: 3, MinInvest: decimal.NewFromInt(14850), Invested: decimal.NewFromInt(44550), Composite: 8.094, Verdict: model.VerdictGood},
		},
		TotalInvested: decimal.NewFromInt(44550),
		Leftover:      decimal.NewFromInt(55450),
		Solver:        "exact",
		Explanations: []model.Explanation{
			{Name: "R&D Labs", Status: model.StatusAllocated, Favorable: []model.ReasonCode{model.ReasonStrongGMP, model.ReasonGoodVerdict}},
			{Name: "Slow Co", Status: model.StatusUnfunded, Caution: []model.ReasonCode{model.ReasonSMECategory}, Exclusion: []model.ReasonCode{model.ReasonNotFunded}},
		},
	}
}

func TestFormatPlanReport(t *testing.T) {
	out := FormatPlanReport(testPlan())

	assert.Contains(t, out, "Budget: ₹100000")
	assert.Contains(t, out, "R&amp;D Labs: 3 × ₹14850 = ₹44550 (score 8.094, Good)")
	assert.Contains(t, out, "Invested: ₹44550 (44.")
	assert.Contains(t, out, "Leftover: ₹55450")
	assert.Contains(t, out, "Solver: exact")
	assert.Contains(t, out, "strong_gmp, good_verdict")
	assert.Contains(t, out, "Slow Co [unfunded] ⚠️ sme_category ⛔ not_funded")
	assert.NotContains(t, out, "degraded")
}

func TestFormatPlanReport_EmptyAndDegraded(t *testing.T) {
	plan := testPlan()
	plan.Allocations = nil
	plan.Explanations = nil
	plan.TotalInvested = decimal.Zero
	plan.Leftover = plan.Budget
	plan.Solver = "greedy"
	plan.Degraded = true
	plan.DegradeReason = "timed_out: context deadline exceeded"

	out := FormatPlanReport(plan)

	assert.Contains(t, out, "No allocation")
	assert.Contains(t, out, "(0.0%)")
	assert.Contains(t, out, "degraded: timed_out")
	assert.NotContains(t, out, "Reasons")
}

func TestFormatCandidates(t *testing.T) {
	var cands []model.Candidate
	for i := 0; i < 4; i++ {
		cands = append(cands, model.Candidate{
			Name:      fmt.Sprintf("IPO %d", i),
			Category:  model.CategoryMainboard,
			Composite: 8 - float64(i),
			Verdict:   model.VerdictGood,
			MinInvest: decimal.NewFromInt(15000),
			CloseDate: time.Date(2026, 10, 24, 0, 0, 0, 0, time.UTC),
		})
	}

	out := FormatCandidates(cands, 2)
	assert.Contains(t, out, "Candidates</b> (4)")
	assert.Contains(t, out, "1. IPO 0 (mainboard): 8.000 Good | lot ₹15000 | closes 24 Oct")
	assert.Contains(t, out, "2. IPO 1")
	assert.NotContains(t, out, "3. IPO 2")
	assert.Contains(t, out, "… and 2 more")

	assert.Contains(t, FormatCandidates(nil, 0), "No open offerings")
}
