package render

import (
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/testrig/pkg/bench"
	"github.com/dkoosis/testrig/pkg/pattern"
	"github.com/dkoosis/testrig/pkg/report"
)

func sampleReport() *report.Report {
	rep := report.New(time.Now())
	rep.Add(report.TestResult{Name: "test_add[x=1,y=10]", Suite: "Math", Status: report.Passed, Duration: 3 * time.Millisecond})
	rep.Add(report.TestResult{Name: "test_div", Suite: "Math", Status: report.Failed,
		Failure: &report.Failure{Message: "want 2 | got 3", Type: "*runner.AssertionError"}})
	rep.AddBenchmark(bench.GroupResult{
		Name:     "concat",
		Baseline: "plus",
		Results: []bench.Result{
			{Name: "plus", SamplesMs: []float64{2, 2.2}, Stats: bench.Compute([]float64{2, 2.2}, 100, false)},
			{Name: "builder", SamplesMs: []float64{1, 1.1}, Stats: bench.Compute([]float64{1, 1.1}, 100, false)},
		},
		Comparisons: []bench.Comparison{{Variant: "builder", Baseline: "plus", Speedup: 2}},
	})
	rep.Finish(time.Now())
	return rep
}

func TestTerminal_RenderReport(t *testing.T) {
	out := Report(NewTerminal(MonoTheme(), 100), sampleReport())
	assert.Contains(t, out, "RUN: 2 tests")
	assert.Contains(t, out, "+ test_add[x=1,y=10]")
	assert.Contains(t, out, "x test_div")
	assert.Contains(t, out, "BENCH: concat")
	assert.Contains(t, out, "2.00x")
}

func TestTerminal_WideNamesStayAligned(t *testing.T) {
	tt := &pattern.TestTable{Label: "T", Results: []pattern.TestTableItem{
		{Name: "test[s=日本]", Status: pattern.StatusPass, Duration: "1ms"},
		{Name: "test[s=ab]", Status: pattern.StatusPass, Duration: "10ms"},
	}}
	out := NewTerminal(MonoTheme(), 80).Render([]pattern.Pattern{tt})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	endCell := func(line, token string) int {
		return runewidth.StringWidth(line[:strings.Index(line, token)]) + len(token)
	}
	assert.Equal(t, endCell(lines[1], "1ms"), endCell(lines[2], "10ms"), "duration column ends at the same cell")
}

func TestMarkdown_RenderReport(t *testing.T) {
	out := Report(NewMarkdown(), sampleReport())
	assert.True(t, strings.HasPrefix(out, "# RUN: 2 tests"))
	assert.Contains(t, out, "| Status")
	assert.Contains(t, out, "| Pass ")
	assert.Contains(t, out, "| Fail ")
	assert.Contains(t, out, `want 2 \| got 3`)
	assert.Contains(t, out, "## BENCH: concat")
	assert.Contains(t, out, "2.00x")
	assert.NotContains(t, out, "\x1b[")
}

func TestByName(t *testing.T) {
	for _, f := range []string{"", FormatTerminal, FormatMarkdown, "md"} {
		r, err := ByName(f, DefaultTheme(), 80)
		require.NoError(t, err, f)
		assert.NotNil(t, r)
	}
	for _, f := range []string{"html", "json"} {
		_, err := ByName(f, DefaultTheme(), 80)
		assert.Error(t, err, f)
	}
}

func TestThemeByName(t *testing.T) {
	assert.Equal(t, "orca", ThemeByName("orca").Name)
	assert.Equal(t, "mono", ThemeByName("mono").Name)
	assert.Equal(t, "default", ThemeByName("unknown").Name)
}

func TestTheme_Marks(t *testing.T) {
	mono := MonoTheme()
	assert.Equal(t, "+", mono.Mark(MarkPass))
	assert.Equal(t, "E", mono.Icon(MarkError))
	assert.Equal(t, "s", mono.Icon(MarkSkip))

	def := DefaultTheme()
	assert.Equal(t, "✓", def.Icon(MarkPass))
	assert.Equal(t, "‼", def.Icon(MarkError))
	assert.Equal(t, def.Style(MarkFail).GetForeground(), def.Style(MarkError).GetForeground(),
		"errors share the failure color")
	assert.NotEqual(t, def.Style(MarkPass).GetForeground(), def.Style(MarkFail).GetForeground())
}
