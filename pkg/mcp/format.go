package mcp

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agroguard/agroguard/pkg/models"
)

func formatDecision(d models.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "source=%s", d.Source)
	if d.Reason != "" {
		fmt.Fprintf(&b, " reason=%s", d.Reason)
	}
	if d.Provider != "" {
		fmt.Fprintf(&b, " provider=%s model=%s", d.Provider, d.Model)
	}
	fmt.Fprintf(&b, " request_id=%s latency=%s", d.RequestID, d.Latency.Round(time.Millisecond))
	return b.String()
}

func formatSummary(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-25s %8s %10s %10s %10s\n",
		"Provider", "Model", "Requests", "Prompt", "Completion", "Total")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %-25s %8d %10d %10d %10d\n",
			r.Provider, r.Model, r.RequestCount, r.TotalPrompt, r.TotalCompletion, r.TotalTokens)
	}
	return b.String()
}

func formatDecisions(rows []models.DecisionSummary) string {
	if len(rows) == 0 {
		return "No decisions recorded.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-9s %8s %12s\n", "Use Case", "Source", "Count", "Avg Latency")
	b.WriteString(strings.Repeat("-", 42) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-10s %-9s %8d %10.0fms\n", r.UseCase, r.Source, r.Count, r.AvgLatencyMs)
	}
	return b.String()
}

func formatFallbackReasons(reasons map[string]int) string {
	if len(reasons) == 0 {
		return "No fallbacks.\n"
	}
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Fallback reasons\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  %-20s %d\n", k, reasons[k])
	}
	return b.String()
}

type budgetRow struct {
	Provider string
	models.BudgetStatus
}

func formatBudgetStatus(rows []budgetRow) string {
	if len(rows) == 0 {
		return "No budget policies found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-20s %-8s %12s %12s %12s %6s\n",
		"Provider", "Model", "Period", "Max Tokens", "Used", "Remaining", "Usage%")
	b.WriteString(strings.Repeat("-", 88) + "\n")
	for _, r := range rows {
		model := r.Policy.Model
		if model == "" {
			model = "*"
		}
		pct := float64(0)
		if r.Policy.MaxTokens > 0 {
			pct = float64(r.Used) / float64(r.Policy.MaxTokens) * 100
		}
		fmt.Fprintf(&b, "%-12s %-20s %-8s %12d %12d %12d %5.1f%%\n",
			r.Provider, model, r.Policy.Period, r.Policy.MaxTokens, r.Used, r.Remaining, pct)
	}
	return b.String()
}

func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}

func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-36s %3s %-10s %-10s %-22s %-18s %8s\n",
		"Time", "Request ID", "#", "Use Case", "Provider", "Model", "Outcome", "Tokens")
	b.WriteString(strings.Repeat("-", 136) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-20s %-36s %3d %-10s %-10s %-22s %-18s %8d\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.RequestID, e.Attempt, e.UseCase, e.Provider, e.Model, e.Outcome, e.TotalTokens)
	}
	return b.String()
}
