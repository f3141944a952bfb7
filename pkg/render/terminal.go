package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/dkoosis/testrig/pkg/pattern"
)

// Terminal renders patterns as styled terminal output via lipgloss. Column
// widths are measured in terminal cells so wide runes in parametrized names
// stay aligned.
type Terminal struct {
	theme Theme
	width int
}

// NewTerminal creates a terminal renderer with the given theme.
func NewTerminal(theme Theme, width int) *Terminal {
	if width <= 0 {
		width = 80
	}
	return &Terminal{theme: theme, width: width}
}

// Render formats all patterns for terminal display.
func (t *Terminal) Render(patterns []pattern.Pattern) string {
	var sections []string
	for _, p := range patterns {
		s := t.renderOne(p)
		if s != "" {
			sections = append(sections, s)
		}
	}
	return strings.Join(sections, "\n")
}

func (t *Terminal) renderOne(p pattern.Pattern) string {
	switch v := p.(type) {
	case *pattern.Summary:
		return t.renderSummary(v)
	case *pattern.Leaderboard:
		return t.renderLeaderboard(v)
	case *pattern.TestTable:
		return t.renderTestTable(v)
	case *pattern.Sparkline:
		return t.renderSparkline(v)
	case *pattern.Comparison:
		return t.renderComparison(v)
	default:
		return ""
	}
}

func (t *Terminal) renderSummary(s *pattern.Summary) string {
	var sb strings.Builder
	if s.Label != "" {
		sb.WriteString(t.theme.Bold.Render(s.Label))
		sb.WriteString("\n")
	}
	for _, m := range s.Metrics {
		sb.WriteString("  ")
		mark := kindMark(m.Kind)
		sb.WriteString(t.theme.Style(mark).Render(t.theme.Icon(mark) + " " + m.Label + ": " + m.Value))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Terminal) renderLeaderboard(l *pattern.Leaderboard) string {
	if len(l.Items) == 0 {
		return ""
	}
	var sb strings.Builder
	if l.Label != "" {
		header := l.Label
		if l.TotalCount > len(l.Items) {
			header += fmt.Sprintf(" (top %d of %d)", len(l.Items), l.TotalCount)
		}
		sb.WriteString(t.theme.Bold.Render(header))
		sb.WriteString("\n")
	}

	maxName, maxMetric := 0, 0
	for _, item := range l.Items {
		maxName = max(maxName, runewidth.StringWidth(item.Name))
		maxMetric = max(maxMetric, runewidth.StringWidth(item.Metric))
	}
	maxName = min(maxName, t.width/2)

	for _, item := range l.Items {
		sb.WriteString("  ")
		if l.ShowRank {
			sb.WriteString(t.theme.Muted.Render(fmt.Sprintf("%2d. ", item.Rank)))
		}
		sb.WriteString(t.theme.Accent.Render(padRight(truncate(item.Name, maxName), maxName)))
		sb.WriteString("  ")
		sb.WriteString(t.theme.Style(MarkWarn).Render(padLeft(item.Metric, maxMetric)))
		if l.MetricName != "" {
			sb.WriteString(t.theme.Muted.Render(" " + l.MetricName))
		}
		if item.Context != "" {
			sb.WriteString("  ")
			sb.WriteString(t.theme.Muted.Render(item.Context))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Terminal) renderTestTable(tt *pattern.TestTable) string {
	if len(tt.Results) == 0 {
		return ""
	}
	var sb strings.Builder
	if tt.Label != "" {
		sb.WriteString(t.theme.Bold.Render(tt.Label))
		sb.WriteString("\n")
	}

	maxName, maxDur := 0, 0
	for _, r := range tt.Results {
		maxName = max(maxName, runewidth.StringWidth(r.Name))
		maxDur = max(maxDur, runewidth.StringWidth(r.Duration))
	}
	maxName = min(maxName, t.width*3/4)

	for _, r := range tt.Results {
		sb.WriteString("  ")
		sb.WriteString(t.theme.Mark(statusMark(r.Status)) + " ")

		sb.WriteString(padRight(truncate(r.Name, maxName), maxName))
		if r.Duration != "" {
			sb.WriteString("  ")
			sb.WriteString(t.theme.Muted.Render(padLeft(r.Duration, maxDur)))
		}

		if r.Details != "" {
			lines := strings.Split(r.Details, "\n")
			for _, line := range lines {
				sb.WriteString("\n    ")
				sb.WriteString(t.theme.Muted.Render(line))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Terminal) renderSparkline(s *pattern.Sparkline) string {
	if len(s.Values) == 0 {
		return ""
	}
	var sb strings.Builder
	if s.Label != "" {
		sb.WriteString(t.theme.Accent.Render(s.Label + ": "))
	}

	minVal, maxVal := s.Bounds()
	valueRange := maxVal - minVal
	if valueRange == 0 {
		valueRange = 1
	}

	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	var spark strings.Builder
	for _, v := range s.Values {
		idx := int((v - minVal) / valueRange * 7)
		if idx < 0 {
			idx = 0
		}
		if idx > 7 {
			idx = 7
		}
		spark.WriteRune(blocks[idx])
	}
	sb.WriteString(t.theme.Style(MarkPass).Render(spark.String()))

	latest := s.Values[len(s.Values)-1]
	sb.WriteString(t.theme.Muted.Render(fmt.Sprintf(" %.3f%s", latest, s.Unit)))
	sb.WriteString("\n")
	return sb.String()
}

func (t *Terminal) renderComparison(c *pattern.Comparison) string {
	if len(c.Changes) == 0 {
		return ""
	}
	var sb strings.Builder
	if c.Label != "" {
		sb.WriteString(t.theme.Bold.Render(c.Label))
		sb.WriteString("\n")
	}
	for _, item := range c.Changes {
		sb.WriteString("  ")
		sb.WriteString(item.Label + ": ")
		sb.WriteString(t.theme.Muted.Render(item.Before + " → " + item.After))
		sb.WriteString(" ")

		sb.WriteString(t.changeStyle(item))
		sb.WriteString("\n")
	}
	return sb.String()
}

// changeStyle formats a delta. Ratios ("x") above 1 are improvements; plain
// deltas are treated as costs, so growth is a warning.
func (t *Terminal) changeStyle(item pattern.ComparisonItem) string {
	if item.Unit == "x" {
		var style lipgloss.Style
		switch {
		case item.Change > 1:
			style = t.theme.Style(MarkPass)
		case item.Change < 1:
			style = t.theme.Style(MarkFail)
		default:
			style = t.theme.Muted
		}
		return style.Render(fmt.Sprintf("%.2fx", item.Change))
	}

	var arrow string
	var style lipgloss.Style
	switch {
	case item.Change > 0:
		arrow = "↑"
		style = t.theme.Style(MarkWarn)
	case item.Change < 0:
		arrow = "↓"
		style = t.theme.Style(MarkPass)
	default:
		arrow = "="
		style = t.theme.Muted
	}
	abs := item.Change
	if abs < 0 {
		abs = -abs
	}
	return style.Render(fmt.Sprintf("%s %.1f%s", arrow, abs, item.Unit))
}

func kindMark(kind string) Mark {
	switch kind {
	case pattern.KindSuccess:
		return MarkPass
	case pattern.KindError:
		return MarkFail
	case pattern.KindWarning:
		return MarkWarn
	default:
		return MarkInfo
	}
}

func statusMark(status string) Mark {
	switch status {
	case pattern.StatusPass:
		return MarkPass
	case pattern.StatusFail:
		return MarkFail
	case pattern.StatusError:
		return MarkError
	case pattern.StatusSkip:
		return MarkSkip
	default:
		return MarkBullet
	}
}

func truncate(s string, width int) string {
	if width <= 3 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}

func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func padLeft(s string, width int) string {
	return runewidth.FillLeft(s, width)
}
