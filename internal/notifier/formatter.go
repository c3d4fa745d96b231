package notifier

import (
	"fmt"
	"html"
	"strings"

	"IPOAllocator/internal/model"
)

// FormatPlanReport formats an allocation plan into a Telegram message.
func FormatPlanReport(plan *model.AllocationPlan) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>IPO Allocation</b> | %s\n\n", plan.GeneratedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Budget: ₹%s | hold until %s\n", plan.Budget.StringFixed(0), plan.HoldUntil.Format("02 Jan 2006")))
	b.WriteString(fmt.Sprintf("Eligible: %d | min score %.1f | cap %d lots\n\n", plan.EligibleCount, plan.MinScore, plan.LotCap))

	if len(plan.Allocations) == 0 {
		b.WriteString("💤 <b>No allocation</b>: nothing eligible fits the budget.\n")
	} else {
		b.WriteString("💰 <b>Allocations:</b>\n")
		for _, a := range plan.Allocations {
			b.WriteString(fmt.Sprintf("  %s: %d × ₹%s = ₹%s (score %.3f, %s)\n",
				html.EscapeString(a.Name), a.Lots, a.MinInvest.StringFixed(0), a.Invested.StringFixed(0), a.Composite, a.Verdict))
		}
	}
	b.WriteString("  ─────────────────\n")
	b.WriteString(fmt.Sprintf("  Invested: ₹%s (%.1f%%)\n", plan.TotalInvested.StringFixed(0), plan.Utilization()))
	b.WriteString(fmt.Sprintf("  Leftover: ₹%s\n", plan.Leftover.StringFixed(0)))
	b.WriteString(fmt.Sprintf("  Solver: %s\n", plan.Solver))
	if plan.Degraded {
		b.WriteString(fmt.Sprintf("  ⚠️ degraded: %s\n", html.EscapeString(plan.DegradeReason)))
	}

	if len(plan.Explanations) > 0 {
		b.WriteString("\n📝 <b>Reasons:</b>\n")
		for _, e := range plan.Explanations {
			b.WriteString(formatExplanation(e))
		}
	}
	return b.String()
}

func formatExplanation(e model.Explanation) string {
	var parts []string
	if len(e.Favorable) > 0 {
		parts = append(parts, "➕ "+joinCodes(e.Favorable))
	}
	if len(e.Caution) > 0 {
		parts = append(parts, "⚠️ "+joinCodes(e.Caution))
	}
	if len(e.Exclusion) > 0 {
		parts = append(parts, "⛔ "+joinCodes(e.Exclusion))
	}
	line := fmt.Sprintf("  %s [%s]", html.EscapeString(e.Name), e.Status)
	if len(parts) > 0 {
		line += " " + strings.Join(parts, " ")
	}
	return line + "\n"
}

func joinCodes(codes []model.ReasonCode) string {
	s := make([]string, len(codes))
	for i, c := range codes {
		s[i] = string(c)
	}
	return strings.Join(s, ", ")
}

// FormatCandidates lists scored candidates, at most limit of them (0 = all).
func FormatCandidates(cands []model.Candidate, limit int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Candidates</b> (%d)\n\n", len(cands)))
	if len(cands) == 0 {
		b.WriteString("No open offerings in the current snapshot.\n")
		return b.String()
	}
	for i, c := range cands {
		if limit > 0 && i == limit {
			b.WriteString(fmt.Sprintf("… and %d more\n", len(cands)-limit))
			break
		}
		b.WriteString(fmt.Sprintf("%d. %s (%s): %.3f %s | lot ₹%s | closes %s\n",
			i+1, html.EscapeString(c.Name), c.Category, c.Composite, c.Verdict,
			c.MinInvest.StringFixed(0), c.CloseDate.Format("02 Jan")))
	}
	return b.String()
}
