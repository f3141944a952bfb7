package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dkoosis/testrig/pkg/bench"
	"github.com/dkoosis/testrig/pkg/report"
)

func result(status report.Status, d time.Duration) report.TestResult {
	return report.TestResult{Suite: "TestAPI", Name: "test", Status: status, Duration: d}
}

func TestRecorder_CountsByStatus(t *testing.T) {
	r := NewRecorder()
	r.SuiteStarted("TestAPI", 4)
	r.TestFinished(result(report.Passed, 10*time.Millisecond))
	r.TestFinished(result(report.Passed, 20*time.Millisecond))
	r.TestFinished(result(report.Failed, 5*time.Millisecond))
	r.TestFinished(result(report.Skipped, 0))
	r.SuiteFinished("TestAPI")

	if got := testutil.ToFloat64(r.tests.WithLabelValues("passed")); got != 2 {
		t.Errorf("passed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.tests.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.suites); got != 1 {
		t.Errorf("suites = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(r.duration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
	want := `
# HELP testrig_tests_total Finished test instances by status.
# TYPE testrig_tests_total counter
testrig_tests_total{status="failed"} 1
testrig_tests_total{status="passed"} 2
testrig_tests_total{status="skipped"} 1
`
	if err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(want), "testrig_tests_total"); err != nil {
		t.Error(err)
	}
}

func group(name string, ops ...float64) bench.GroupResult {
	g := bench.GroupResult{Name: name, Baseline: "a"}
	for i, o := range ops {
		g.Results = append(g.Results, bench.Result{
			Name:  string(rune('a' + i)),
			Stats: bench.Stats{OpsPerSec: o, MeanMs: 1000 / o},
		})
	}
	return g
}

func TestRecorder_ObserveBenchmarks(t *testing.T) {
	r := NewRecorder()
	g := group("sort", 1000, 2000)
	g.Comparisons = []bench.Comparison{{Variant: "b", Baseline: "a", Speedup: 2}}
	g.Results = append(g.Results, bench.Result{Name: "broken", Error: "boom"})
	r.ObserveBenchmarks([]bench.GroupResult{g})

	if got := testutil.ToFloat64(r.benchOps.WithLabelValues("sort", "b")); got != 2000 {
		t.Errorf("ops = %v, want 2000", got)
	}
	if got := testutil.ToFloat64(r.benchMean.WithLabelValues("sort", "a")); got != 0.001 {
		t.Errorf("mean = %v, want 0.001", got)
	}
	if got := testutil.ToFloat64(r.speedup.WithLabelValues("sort", "b", "a")); got != 2 {
		t.Errorf("speedup = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(r.benchOps); n != 2 {
		t.Errorf("failed variants should not be exported, got %d series", n)
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.TestFinished(result(report.Errored, time.Millisecond))
	path := filepath.Join(t.TempDir(), "testrig.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `testrig_tests_total{status="errored"} 1`) {
		t.Errorf("textfile missing counter:\n%s", data)
	}
}

func TestRegressions(t *testing.T) {
	prev := []bench.GroupResult{group("sort", 1000, 1000, 1000)}
	cur := []bench.GroupResult{group("sort", 950, 800, 1200), group("new", 10)}
	regs := Regressions(prev, cur, DefaultTolerance)
	if len(regs) != 1 {
		t.Fatalf("got %d regressions, want 1: %v", len(regs), regs)
	}
	if regs[0].Variant != "b" || regs[0].From != 1000 || regs[0].To != 800 {
		t.Errorf("unexpected regression %+v", regs[0])
	}
	if got := regs[0].String(); got != "sort/b ops_per_sec 1000.0 -> 800.0 (-20.0%)" {
		t.Errorf("String() = %q", got)
	}

	r := NewRecorder()
	r.ObserveRegressions(regs)
	if got := testutil.ToFloat64(r.regressions); got != 1 {
		t.Errorf("regressions gauge = %v, want 1", got)
	}
}

func TestRegressions_SkipsErroredVariants(t *testing.T) {
	prev := []bench.GroupResult{group("sort", 1000)}
	cur := []bench.GroupResult{group("sort", 100)}
	cur[0].Results[0].Error = "boom"
	if regs := Regressions(prev, cur, DefaultTolerance); len(regs) != 0 {
		t.Errorf("expected no regressions, got %v", regs)
	}
}
