package render

import "github.com/charmbracelet/lipgloss"

// Mark is a status glyph category shared by the static renderers and the
// live views.
type Mark int

const (
	MarkPass Mark = iota
	MarkFail
	MarkError
	MarkSkip
	MarkWarn
	MarkInfo
	MarkBullet
	numMarks
)

// Theme is a named palette plus one glyph per Mark.
type Theme struct {
	Name   string
	Accent lipgloss.Style
	Muted  lipgloss.Style
	Bold   lipgloss.Style

	icons  [numMarks]string
	styles [numMarks]lipgloss.Style
}

// palette lists ANSI-256 colors; an empty color leaves the text unstyled.
type palette struct {
	accent, pass, fail, warn, muted string
}

func fg(color string) lipgloss.Style {
	if color == "" {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func newTheme(name string, p palette, icons [numMarks]string) Theme {
	th := Theme{
		Name:   name,
		Accent: fg(p.accent),
		Muted:  fg(p.muted),
		Bold:   lipgloss.NewStyle().Bold(true),
		icons:  icons,
	}
	th.styles = [numMarks]lipgloss.Style{
		MarkPass:   fg(p.pass),
		MarkFail:   fg(p.fail),
		MarkError:  fg(p.fail),
		MarkSkip:   fg(p.warn),
		MarkWarn:   fg(p.warn),
		MarkInfo:   fg(p.accent),
		MarkBullet: fg(p.muted),
	}
	return th
}

// Icon returns the bare glyph for m.
func (th Theme) Icon(m Mark) string { return th.icons[m] }

// Style returns the color m is drawn in.
func (th Theme) Style(m Mark) lipgloss.Style { return th.styles[m] }

// Mark renders the glyph for m in its color.
func (th Theme) Mark(m Mark) string { return th.styles[m].Render(th.icons[m]) }

// DefaultTheme is the vivid palette.
func DefaultTheme() Theme {
	return newTheme("default",
		palette{accent: "39", pass: "34", fail: "196", warn: "214", muted: "242"},
		[numMarks]string{"✓", "✗", "‼", "○", "⚠", "●", "·"})
}

// OrcaTheme is a muted palette for long sessions.
func OrcaTheme() Theme {
	return newTheme("orca",
		palette{accent: "75", pass: "108", fail: "167", warn: "179", muted: "245"},
		[numMarks]string{"✓", "✗", "!", "○", "!", "·", "·"})
}

// MonoTheme has no color and ASCII glyphs, for files, pipes and NO_COLOR.
func MonoTheme() Theme {
	return newTheme("mono", palette{}, [numMarks]string{"+", "x", "E", "s", "!", "*", "-"})
}

// ThemeByName returns the named theme, falling back to DefaultTheme.
func ThemeByName(name string) Theme {
	switch name {
	case "orca":
		return OrcaTheme()
	case "mono":
		return MonoTheme()
	default:
		return DefaultTheme()
	}
}
