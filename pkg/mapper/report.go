// Package mapper converts run reports into visualization patterns.
package mapper

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dkoosis/testrig/pkg/bench"
	"github.com/dkoosis/testrig/pkg/pattern"
	"github.com/dkoosis/testrig/pkg/report"
)

// FromReport returns a run summary, one TestTable per suite (in the order
// suites first appear), then the benchmark patterns of every group.
func FromReport(rep *report.Report) []pattern.Pattern {
	patterns := []pattern.Pattern{runSummary(rep)}

	var order []string
	bySuite := map[string][]pattern.TestTableItem{}
	for _, r := range rep.Results {
		if _, seen := bySuite[r.Suite]; !seen {
			order = append(order, r.Suite)
		}
		bySuite[r.Suite] = append(bySuite[r.Suite], tableItem(r))
	}
	for _, suite := range order {
		items := bySuite[suite]
		label := suite
		if label == "" {
			label = "Tests"
		}
		patterns = append(patterns, &pattern.TestTable{
			Label:   fmt.Sprintf("%s (%d)", label, len(items)),
			Source:  suite,
			Results: items,
		})
	}

	for i := range rep.Benchmarks {
		patterns = append(patterns, FromBenchmark(&rep.Benchmarks[i])...)
	}
	return patterns
}

func runSummary(rep *report.Report) *pattern.Summary {
	s := rep.Summary
	label := fmt.Sprintf("RUN: %d tests", s.Total)
	if s.Failed+s.Errors == 0 {
		label += " — all pass"
	} else {
		label += fmt.Sprintf(" — %d fail", s.Failed+s.Errors)
	}
	if s.Duration > 0 {
		label += " in " + formatDuration(s.Duration)
	}

	metrics := []pattern.SummaryItem{
		{Label: "Passed", Value: fmt.Sprint(s.Passed), Kind: pattern.KindSuccess},
	}
	if s.Failed > 0 {
		metrics = append(metrics, pattern.SummaryItem{Label: "Failed", Value: fmt.Sprint(s.Failed), Kind: pattern.KindError})
	}
	if s.Errors > 0 {
		metrics = append(metrics, pattern.SummaryItem{Label: "Errors", Value: fmt.Sprint(s.Errors), Kind: pattern.KindError})
	}
	if s.Skipped > 0 {
		metrics = append(metrics, pattern.SummaryItem{Label: "Skipped", Value: fmt.Sprint(s.Skipped), Kind: pattern.KindWarning})
	}
	if n := len(rep.Benchmarks); n > 0 {
		metrics = append(metrics, pattern.SummaryItem{Label: "Benchmarks", Value: fmt.Sprintf("%d groups", n), Kind: pattern.KindInfo})
	}
	return &pattern.Summary{Label: label, Kind: pattern.SummaryKindRun, Metrics: metrics}
}

func tableItem(r report.TestResult) pattern.TestTableItem {
	item := pattern.TestTableItem{
		Name:     r.Name,
		Status:   statusOf(r.Status),
		Duration: formatDuration(r.Duration),
	}
	var details []string
	if r.Failure != nil {
		details = append(details, failureLine(*r.Failure))
	}
	for _, e := range r.Errors {
		details = append(details, failureLine(e))
	}
	item.Details = truncateLines(details, 5)
	return item
}

func failureLine(f report.Failure) string {
	var sb strings.Builder
	if f.Phase != "" {
		sb.WriteString(f.Phase + ": ")
	}
	sb.WriteString(f.Message)
	if f.Type != "" {
		sb.WriteString(" (" + f.Type + ")")
	}
	return sb.String()
}

func statusOf(s report.Status) string {
	switch s {
	case report.Passed:
		return pattern.StatusPass
	case report.Failed:
		return pattern.StatusFail
	case report.Errored:
		return pattern.StatusError
	default:
		return pattern.StatusSkip
	}
}

// FromBenchmark renders one group as a throughput leaderboard, a speedup
// comparison against the baseline, and a per-round sparkline per variant.
func FromBenchmark(g *bench.GroupResult) []pattern.Pattern {
	lb := &pattern.Leaderboard{
		Label:      "BENCH: " + g.Name,
		MetricName: "ops/s",
		Direction:  "highest",
		TotalCount: len(g.Results),
		ShowRank:   true,
	}
	var failed []pattern.TestTableItem
	for _, r := range g.Results {
		if r.Error != "" {
			failed = append(failed, pattern.TestTableItem{Name: r.Name, Status: pattern.StatusError, Details: r.Error})
			continue
		}
		lb.Items = append(lb.Items, pattern.LeaderboardItem{
			Name:    r.Name,
			Metric:  formatOps(r.Stats.OpsPerSec),
			Value:   r.Stats.OpsPerSec,
			Context: statsContext(r.Stats),
		})
	}
	sort.SliceStable(lb.Items, func(i, j int) bool { return lb.Items[i].Value > lb.Items[j].Value })
	for i := range lb.Items {
		lb.Items[i].Rank = i + 1
	}

	patterns := []pattern.Pattern{lb}
	if len(g.Comparisons) > 0 {
		cmp := &pattern.Comparison{Label: "vs " + g.Baseline}
		base, _ := g.Result(g.Baseline)
		for _, c := range g.Comparisons {
			v, _ := g.Result(c.Variant)
			cmp.Changes = append(cmp.Changes, pattern.ComparisonItem{
				Label:  c.Variant,
				Before: formatOps(base.Stats.OpsPerSec),
				After:  formatOps(v.Stats.OpsPerSec),
				Change: c.Speedup,
				Unit:   "x",
			})
		}
		patterns = append(patterns, cmp)
	}
	for _, r := range g.Results {
		if len(r.SamplesMs) > 1 {
			patterns = append(patterns, &pattern.Sparkline{Label: r.Name, Values: r.SamplesMs, Unit: "ms"})
		}
	}
	if len(failed) > 0 {
		patterns = append(patterns, &pattern.TestTable{Label: g.Name + " failures", Source: g.Name, Results: failed})
	}
	return patterns
}

func statsContext(s bench.Stats) string {
	ctx := fmt.Sprintf("mean %.3fms  p50 %.3fms  p95 %.3fms  p99 %.3fms  ±%.3f",
		s.MeanMs, s.P50Ms, s.P95Ms, s.P99Ms, s.StddevMs)
	if s.Outliers > 0 {
		ctx += fmt.Sprintf("  (%d outliers dropped)", s.Outliers)
	}
	return ctx
}

func formatOps(ops float64) string {
	switch {
	case ops >= 1e6:
		return fmt.Sprintf("%.2fM", ops/1e6)
	case ops >= 1e3:
		return fmt.Sprintf("%.2fk", ops/1e3)
	default:
		return fmt.Sprintf("%.2f", ops)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return "0s"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func truncateLines(lines []string, max int) string {
	if len(lines) <= max {
		return strings.Join(lines, "\n")
	}
	result := strings.Join(lines[:max], "\n")
	return result + fmt.Sprintf("\n... (%d more lines)", len(lines)-max)
}
