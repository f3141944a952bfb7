package render

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dkoosis/testrig/pkg/pattern"
)

// Markdown renders patterns as GitHub-flavored Markdown: headings for
// summaries, pipe tables for test tables, leaderboards and comparisons.
// Output carries no ANSI codes and is deterministic for a given input.
type Markdown struct {
	title cases.Caser
}

// NewMarkdown creates a Markdown renderer.
func NewMarkdown() *Markdown {
	return &Markdown{title: cases.Title(language.English)}
}

// Render formats all patterns as Markdown.
func (m *Markdown) Render(patterns []pattern.Pattern) string {
	var sections []string
	for _, p := range patterns {
		var s string
		switch v := p.(type) {
		case *pattern.Summary:
			s = m.renderSummary(v)
		case *pattern.TestTable:
			s = m.renderTestTable(v)
		case *pattern.Leaderboard:
			s = m.renderLeaderboard(v)
		case *pattern.Comparison:
			s = m.renderComparison(v)
		case *pattern.Sparkline:
			s = m.renderSparkline(v)
		}
		if s != "" {
			sections = append(sections, s)
		}
	}
	return strings.Join(sections, "\n")
}

func (m *Markdown) renderSummary(s *pattern.Summary) string {
	var sb strings.Builder
	level := "##"
	if s.Kind == pattern.SummaryKindRun {
		level = "#"
	}
	sb.WriteString(level + " " + escapeCell(s.Label) + "\n\n")
	for _, item := range s.Metrics {
		fmt.Fprintf(&sb, "- **%s**: %s\n", item.Label, item.Value)
	}
	return sb.String()
}

func (m *Markdown) renderTestTable(tt *pattern.TestTable) string {
	if len(tt.Results) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(tt.Results))
	for _, r := range tt.Results {
		rows = append(rows, []string{
			m.title.String(r.Status),
			"`" + r.Name + "`",
			r.Duration,
			strings.ReplaceAll(r.Details, "\n", "<br>"),
		})
	}
	return "## " + escapeCell(tt.Label) + "\n\n" +
		table([]string{"Status", "Test", "Duration", "Details"}, rows)
}

func (m *Markdown) renderLeaderboard(l *pattern.Leaderboard) string {
	if len(l.Items) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(l.Items))
	for _, item := range l.Items {
		rows = append(rows, []string{fmt.Sprint(item.Rank), item.Name, item.Metric, item.Context})
	}
	metric := l.MetricName
	if metric == "" {
		metric = "Value"
	}
	return "## " + escapeCell(l.Label) + "\n\n" + table([]string{"#", "Variant", metric, "Stats"}, rows)
}

func (m *Markdown) renderComparison(c *pattern.Comparison) string {
	if len(c.Changes) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(c.Changes))
	for _, item := range c.Changes {
		change := fmt.Sprintf("%+.1f%s", item.Change, item.Unit)
		if item.Unit == "x" {
			change = fmt.Sprintf("%.2fx", item.Change)
		}
		rows = append(rows, []string{item.Label, item.Before, item.After, change})
	}
	return "### " + escapeCell(c.Label) + "\n\n" + table([]string{"Variant", "Baseline", "Variant", "Change"}, rows)
}

func (m *Markdown) renderSparkline(s *pattern.Sparkline) string {
	if len(s.Values) == 0 {
		return ""
	}
	parts := make([]string, len(s.Values))
	for i, v := range s.Values {
		parts[i] = fmt.Sprintf("%.3f", v)
	}
	return fmt.Sprintf("- `%s` rounds (%s): %s\n", s.Label, s.Unit, strings.Join(parts, ", "))
}

// table renders a pipe table with columns padded to their widest cell.
func table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = max(3, runewidth.StringWidth(h))
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(escapeCell(cell)))
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		sb.WriteString("|")
		for i, c := range cells {
			sb.WriteString(" " + runewidth.FillRight(escapeCell(c), widths[i]) + " |")
		}
		sb.WriteString("\n")
	}
	writeRow(header)
	sb.WriteString("|")
	for _, w := range widths {
		sb.WriteString(" " + strings.Repeat("-", w) + " |")
	}
	sb.WriteString("\n")
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
